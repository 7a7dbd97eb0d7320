package tradlet

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradlet-core/internal/exec"
	"tradlet-core/internal/md"
	"tradlet-core/internal/monitor"
	"tradlet-core/internal/wave"
)

type eventKind int

const (
	evTick eventKind = iota
	evBar
	evNoop
	evReport
	evState
)

func (k eventKind) String() string {
	switch k {
	case evTick:
		return "tick"
	case evBar:
		return "bar"
	case evNoop:
		return "noop"
	case evReport:
		return "report"
	case evState:
		return "state"
	}
	return "unknown"
}

type event struct {
	kind       eventKind
	tick       *md.Tick
	instrument string
	level      wave.Level
	series     *wave.Series
	report     exec.Report
	state      GroupState
}

// Engine runs one group's sequential worker: every event is processed one at
// a time, in the order the dispatcher delivered it. The queue is unbounded
// but monitored (queue depth is exported); producers never block and never
// touch group state.
type Engine struct {
	group *Group
	log   zerolog.Logger

	mu     sync.Mutex
	queue  []event
	notify chan struct{}

	lastEvent atomic.Int64 // unix nanos of the last non-noop event queued

	stop chan struct{}
	done chan struct{}
}

func NewEngine(g *Group, log zerolog.Logger) *Engine {
	e := &Engine{
		group:  g,
		log:    log.With().Str("group", g.ID()).Str("component", "engine").Logger(),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.lastEvent.Store(time.Now().UnixNano())
	return e
}

func (e *Engine) Group() *Group { return e.group }

// LastEventTime is when the engine last received a non-noop event; the
// dispatcher uses it to gate idle heartbeats.
func (e *Engine) LastEventTime() time.Time {
	return time.Unix(0, e.lastEvent.Load())
}

// QueueTick enqueues a market-data tick. Ticks are never coalesced: each one
// must reach the segmenter.
func (e *Engine) QueueTick(t *md.Tick) {
	monitor.TicksRouted.WithLabelValues(e.group.ID()).Inc()
	e.lastEvent.Store(time.Now().UnixNano())
	e.enqueue(event{kind: evTick, tick: t})
}

// QueueBar enqueues a bar update. A pending bar for the same instrument and
// level is replaced in place: a bar event carries the full current window,
// so a burst coalesces safely while order relative to other events is kept.
func (e *Engine) QueueBar(instrument string, level wave.Level, series *wave.Series) {
	e.lastEvent.Store(time.Now().UnixNano())
	e.mu.Lock()
	for i := range e.queue {
		if e.queue[i].kind == evBar && e.queue[i].instrument == instrument && e.queue[i].level == level {
			e.queue[i].series = series
			e.mu.Unlock()
			e.wake()
			return
		}
	}
	e.queue = append(e.queue, event{kind: evBar, instrument: instrument, level: level, series: series})
	depth := len(e.queue)
	e.mu.Unlock()
	monitor.QueueDepth.WithLabelValues(e.group.ID()).Set(float64(depth))
	e.wake()
}

// QueueNoop enqueues an idle heartbeat. Noops do not refresh LastEventTime.
func (e *Engine) QueueNoop() {
	e.enqueue(event{kind: evNoop})
}

// QueueReport enqueues an execution report so fills and cancels are
// reconciled on the group worker.
func (e *Engine) QueueReport(rep exec.Report) {
	e.lastEvent.Store(time.Now().UnixNano())
	e.enqueue(event{kind: evReport, report: rep})
}

// QueueSetState enqueues an operator state command.
func (e *Engine) QueueSetState(s GroupState) {
	e.enqueue(event{kind: evState, state: s})
}

func (e *Engine) enqueue(ev event) {
	e.mu.Lock()
	e.queue = append(e.queue, ev)
	depth := len(e.queue)
	e.mu.Unlock()
	monitor.QueueDepth.WithLabelValues(e.group.ID()).Set(float64(depth))
	e.wake()
}

func (e *Engine) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Stop terminates the worker after the current event; queued events are
// dropped.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		ev, ok := e.pop()
		if !ok {
			select {
			case <-e.notify:
				continue
			case <-e.stop:
				return
			}
		}
		e.process(ev)
		select {
		case <-e.stop:
			return
		default:
		}
	}
}

func (e *Engine) pop() (event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return event{}, false
	}
	ev := e.queue[0]
	e.queue = e.queue[1:]
	monitor.QueueDepth.WithLabelValues(e.group.ID()).Set(float64(len(e.queue)))
	return ev, true
}

func (e *Engine) process(ev event) {
	monitor.EventsProcessed.WithLabelValues(e.group.ID(), ev.kind.String()).Inc()
	switch ev.kind {
	case evTick:
		e.group.onTick(ev.tick)
	case evBar:
		e.group.onBar(ev.instrument, ev.level, ev.series)
	case evNoop:
		e.group.onNoop()
	case evReport:
		e.group.handleReport(ev.report)
	case evState:
		e.group.setState(ev.state)
	}
}
