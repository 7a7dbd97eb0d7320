package tradlet

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tradlet-core/internal/md"
	"tradlet-core/internal/wave"
)

// DefaultNoopTimeout is how long a group must be idle before it receives a
// noop heartbeat.
const DefaultNoopTimeout = 15 * time.Second

// Dispatcher is the process-wide fan-out: it subscribes to the market-data
// feed and a 1-second timer, and routes each event to every interested group
// engine. It only enqueues; group state is never touched here, so one slow
// or failing group cannot affect another.
type Dispatcher struct {
	engines     []*Engine
	noopTimeout time.Duration
	log         zerolog.Logger
}

func NewDispatcher(engines []*Engine, noopTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	if noopTimeout <= 0 {
		noopTimeout = DefaultNoopTimeout
	}
	return &Dispatcher{
		engines:     engines,
		noopTimeout: noopTimeout,
		log:         log.With().Str("component", "dispatcher").Logger(),
	}
}

// OnTick implements md.Listener: every feed tick is routed, in arrival
// order, to the engines whose group declared interest in the instrument.
func (d *Dispatcher) OnTick(t *md.Tick) {
	for _, e := range d.engines {
		if e.group.InterestOn(t.Instrument, "") {
			e.QueueTick(t)
		}
	}
}

// PublishBar routes an aggregated bar series to the engines interested in
// the instrument at that level.
func (d *Dispatcher) PublishBar(instrument string, level wave.Level, series *wave.Series) {
	for _, e := range d.engines {
		if e.group.InterestOn(instrument, level) {
			e.QueueBar(instrument, level, series)
		}
	}
}

// Run drives the noop heartbeat: every second, each group that has seen no
// event within the idle timeout gets one noop, so time-based stop policies
// evaluate even without price movement. Active groups are not woken
// redundantly.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range d.engines {
				if now.Sub(e.LastEventTime()) >= d.noopTimeout {
					e.QueueNoop()
				}
			}
		}
	}
}
