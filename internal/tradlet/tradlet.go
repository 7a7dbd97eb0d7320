package tradlet

import (
	"time"

	"tradlet-core/internal/md"
	"tradlet-core/internal/wave"
)

// Tradlet is the event contract for a trading algorithm hosted by a group.
// All callbacks run on the group's worker, one event at a time, in arrival
// order; implementations own no locks and must not block.
type Tradlet interface {
	ID() string
	OnTick(t *md.Tick)
	OnBar(instrument string, level wave.Level, series *wave.Series)
	OnNoop(now time.Time)
}

// StopTradlet is the built-in tradlet that evaluates the stop policies of
// every Opened playbook on each tick and noop. Policies run in attachment
// order and the first trigger wins; time-based policies still fire on noop
// heartbeats when no price moves.
type StopTradlet struct {
	g *Group
}

func (s *StopTradlet) ID() string { return "stop" }

func (s *StopTradlet) OnTick(t *md.Tick) { s.evaluate(t) }

func (s *StopTradlet) OnBar(string, wave.Level, *wave.Series) {}

func (s *StopTradlet) OnNoop(time.Time) { s.evaluate(nil) }

func (s *StopTradlet) evaluate(t *md.Tick) {
	// Below CloseOnly the group may not initiate closes; state still got
	// updated by the segmenter before we were called.
	if s.g.State() < GroupCloseOnly {
		return
	}
	now := s.g.now()
	for _, pb := range s.g.Playbooks() {
		if pb.State() != StateOpened {
			continue
		}
		if t != nil && t.Instrument != pb.Instrument() {
			continue
		}
		ctx := EvalContext{Tick: t, Now: now, Series: s.g.seg.Series(pb.Instrument())}
		if d := EvaluatePolicies(pb, ctx); d != nil {
			s.g.closePlaybook(pb, d.PolicyID, d.TriggerPrice)
		}
	}
}
