package wave

import (
	"fmt"
	"time"

	"tradlet-core/internal/md"
	"tradlet-core/internal/num"
)

// Option carries the stroke construction parameters.
type Option struct {
	// Threshold is the fixed price distance that both establishes a bar's
	// direction and forces a reversal split.
	Threshold num.Price
}

// StrokeBar is a directional price segment built tick by tick. It retains the
// four defining ticks so a split can repair its extremes exactly.
type StrokeBar struct {
	opt Option

	begin, end time.Time
	open       num.Price
	close      num.Price
	max        num.Price
	min        num.Price

	volume       int64
	amount       num.Price
	openInterest int64
	avgPrice     num.Price
	mktAvgPrice  num.Price

	direction Direction

	tkOpen  *md.Tick
	tkClose *md.Tick
	tkMax   *md.Tick
	tkMin   *md.Tick
}

// NewStrokeBar seeds a degenerate bar from a single tick; its direction stays
// Net until price moves beyond the threshold from the open.
func NewStrokeBar(opt Option, t *md.Tick) *StrokeBar {
	b := &StrokeBar{
		opt:          opt,
		begin:        t.Time,
		end:          t.Time,
		open:         t.Price,
		close:        t.Price,
		max:          t.Price,
		min:          t.Price,
		openInterest: t.OpenInterest,
		avgPrice:     t.Price,
		mktAvgPrice:  t.AvgPrice,
		direction:    Net,
		tkOpen:       t,
		tkClose:      t,
		tkMax:        t,
		tkMin:        t,
	}
	return b
}

// newStrokeBar2 seeds a bar from two ticks; the direction follows their
// relative price. Used for the successor bar of a split.
func newStrokeBar2(opt Option, t1, t2 *md.Tick) *StrokeBar {
	b := &StrokeBar{
		opt:     opt,
		begin:   t1.Time,
		end:     t2.Time,
		open:    t1.Price,
		close:   t2.Price,
		tkOpen:  t1,
		tkClose: t2,
	}
	if t1.Price.Less(t2.Price) {
		b.direction = Long
		b.tkMax, b.tkMin = t2, t1
		b.max, b.min = b.close, b.open
	} else {
		b.direction = Short
		b.tkMax, b.tkMin = t1, t2
		b.max, b.min = b.open, b.close
	}
	b.updateVol()
	return b
}

func (b *StrokeBar) Instrument() string      { return b.tkOpen.Instrument }
func (b *StrokeBar) Begin() time.Time        { return b.begin }
func (b *StrokeBar) End() time.Time          { return b.end }
func (b *StrokeBar) Open() num.Price         { return b.open }
func (b *StrokeBar) Close() num.Price        { return b.close }
func (b *StrokeBar) Max() num.Price          { return b.max }
func (b *StrokeBar) Min() num.Price          { return b.min }
func (b *StrokeBar) Volume() int64           { return b.volume }
func (b *StrokeBar) Amount() num.Price       { return b.amount }
func (b *StrokeBar) OpenInterest() int64     { return b.openInterest }
func (b *StrokeBar) AvgPrice() num.Price     { return b.avgPrice }
func (b *StrokeBar) MktAvgPrice() num.Price  { return b.mktAvgPrice }
func (b *StrokeBar) Direction() Direction    { return b.direction }
func (b *StrokeBar) WaveType() WaveType      { return Stroke }
func (b *StrokeBar) OpenTick() *md.Tick      { return b.tkOpen }
func (b *StrokeBar) CloseTick() *md.Tick     { return b.tkClose }
func (b *StrokeBar) MaxTick() *md.Tick       { return b.tkMax }
func (b *StrokeBar) MinTick() *md.Tick       { return b.tkMin }

// CanMerge is false for stroke bars: a stroke is the minimal unit and a bar
// that never left Net carries no trend information worth merging.
func (b *StrokeBar) CanMerge() bool { return false }

func (b *StrokeBar) Merge(Bar) error { return ErrMergeUnsupported }

// Update extends the bar with a new tick. It returns nil while the bar
// continues, or the successor bar when a reversal split occurred; the caller
// must then treat this bar as closed and the successor as the new in-progress
// bar. At most one split happens per call.
func (b *StrokeBar) Update(t *md.Tick) *StrokeBar {
	b.tkClose = t
	b.end = t.Time
	b.close = t.Price
	if b.max.Less(t.Price) {
		b.tkMax = t
		b.max = t.Price
	}
	if b.min.Greater(t.Price) {
		b.tkMin = t
		b.min = t.Price
	}
	b.updateVol()

	if b.direction == Net {
		// Direction is established inclusively: a move of exactly the
		// threshold is enough. Once set it never reverts to Net.
		if !b.close.Less(b.open.Add(b.opt.Threshold)) {
			b.direction = Long
		} else if !b.close.Greater(b.open.Sub(b.opt.Threshold)) {
			b.direction = Short
		}
	}
	if b.needSplit() {
		return b.split()
	}
	return nil
}

// needSplit reports whether price has retraced from the bar's extreme by more
// than the threshold.
func (b *StrokeBar) needSplit() bool {
	switch b.direction {
	case Long:
		return b.max.Greater(b.close.Add(b.opt.Threshold))
	case Short:
		return b.min.Less(b.close.Sub(b.opt.Threshold))
	}
	return false
}

// split pins the bar's close to its extreme tick and seeds the successor with
// (extreme tick, previous close tick), giving it the opposite direction. When
// the other extreme belongs to the discarded tail it is recomputed from the
// open and new close ticks only, so a stale extreme never leaks into the
// closed bar.
func (b *StrokeBar) split() *StrokeBar {
	var head, tail *md.Tick
	switch b.direction {
	case Long:
		head, tail = b.tkMax, b.tkClose
		b.tkClose = b.tkMax
		b.close = b.max
		b.end = b.tkMax.Time
		if b.tkMin.Time.After(b.tkClose.Time) {
			b.tkMin = minTick(b.tkOpen, b.tkClose)
			b.min = b.tkMin.Price
		}
	case Short:
		head, tail = b.tkMin, b.tkClose
		b.tkClose = b.tkMin
		b.close = b.min
		b.end = b.tkMin.Time
		if b.tkMax.Time.After(b.tkClose.Time) {
			b.tkMax = maxTick(b.tkOpen, b.tkClose)
			b.max = b.tkMax.Price
		}
	default:
		return nil
	}
	b.updateVol()
	return newStrokeBar2(b.opt, head, tail)
}

func (b *StrokeBar) updateVol() {
	vol := b.tkClose.Volume - b.tkOpen.Volume
	b.volume = vol
	b.amount = b.tkClose.Turnover.Sub(b.tkOpen.Turnover)
	b.openInterest = b.tkClose.OpenInterest
	b.mktAvgPrice = b.tkClose.AvgPrice
	if vol == 0 {
		b.avgPrice = b.tkClose.AvgPrice
	} else {
		b.avgPrice = num.DivVol(b.amount, vol)
	}
}

func maxTick(a, b *md.Tick) *md.Tick {
	if a.Price.Greater(b.Price) {
		return a
	}
	return b
}

func minTick(a, b *md.Tick) *md.Tick {
	if a.Price.Less(b.Price) {
		return a
	}
	return b
}

func (b *StrokeBar) String() string {
	return fmt.Sprintf("Stroke[%s %s O %s C %s H %s L %s]",
		b.direction, b.begin.Format("15:04:05.000"), b.open, b.close, b.max, b.min)
}
