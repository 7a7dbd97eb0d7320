package wave

import (
	"tradlet-core/internal/md"
)

// Segmenter turns per-instrument tick streams into stroke series. It keeps
// one active-bar slot per instrument and appends to the closed series on
// every reversal split. The segmenter is a pure function of its tick
// sequence: it never errors and owns no goroutines; the caller (a group
// worker) provides single-threaded access.
type Segmenter struct {
	opt   Option
	slots map[string]*slot
}

type slot struct {
	active *StrokeBar
	closed []*StrokeBar
}

func NewSegmenter(opt Option) *Segmenter {
	return &Segmenter{opt: opt, slots: make(map[string]*slot)}
}

// Feed advances the instrument's stream with one tick. It returns the bar
// closed by a reversal split, or nil while the active bar continues.
func (s *Segmenter) Feed(t *md.Tick) *StrokeBar {
	sl := s.slots[t.Instrument]
	if sl == nil {
		sl = &slot{}
		s.slots[t.Instrument] = sl
	}
	if sl.active == nil {
		sl.active = NewStrokeBar(s.opt, t)
		return nil
	}
	successor := sl.active.Update(t)
	if successor == nil {
		return nil
	}
	closed := sl.active
	sl.closed = append(sl.closed, closed)
	sl.active = successor
	return closed
}

// Active returns the in-progress bar for the instrument, nil before the
// first tick.
func (s *Segmenter) Active(instrument string) *StrokeBar {
	if sl := s.slots[instrument]; sl != nil {
		return sl.active
	}
	return nil
}

// Closed returns the closed bars for the instrument, oldest first. The
// returned slice is shared; callers must not mutate it.
func (s *Segmenter) Closed(instrument string) []*StrokeBar {
	if sl := s.slots[instrument]; sl != nil {
		return sl.closed
	}
	return nil
}

// Series snapshots the instrument's stroke history for a Bar event.
func (s *Segmenter) Series(instrument string) *Series {
	sl := s.slots[instrument]
	if sl == nil {
		return &Series{Instrument: instrument, Level: LevelStroke}
	}
	return &Series{
		Instrument: instrument,
		Level:      LevelStroke,
		Closed:     sl.closed,
		Active:     sl.active,
	}
}
