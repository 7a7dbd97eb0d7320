package wave

import (
	"testing"
	"time"

	"tradlet-core/internal/md"
	"tradlet-core/internal/num"
)

var testBase = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// mkTick builds a tick at base+offsetSec with the given whole-unit price and
// cumulative volume/turnover.
func mkTick(instr string, offsetSec int, price int64, vol int64, turnover int64) *md.Tick {
	return &md.Tick{
		Instrument:   instr,
		Time:         testBase.Add(time.Duration(offsetSec) * time.Second),
		Price:        num.FromInt(price),
		Volume:       vol,
		Turnover:     num.FromInt(turnover),
		OpenInterest: 1000 + vol,
		AvgPrice:     num.FromInt(price),
	}
}

func opt2() Option { return Option{Threshold: num.FromInt(2)} }

func checkBounds(t *testing.T, b *StrokeBar) {
	t.Helper()
	for _, p := range []num.Price{b.Open(), b.Close(), b.Min()} {
		if b.Max().Less(p) {
			t.Fatalf("max %s below %s", b.Max(), p)
		}
	}
	for _, p := range []num.Price{b.Open(), b.Close(), b.Max()} {
		if b.Min().Greater(p) {
			t.Fatalf("min %s above %s", b.Min(), p)
		}
	}
}

func TestSeedBarIsDegenerateNet(t *testing.T) {
	b := NewStrokeBar(opt2(), mkTick("au2606", 0, 100, 10, 1000))
	if b.Direction() != Net {
		t.Fatalf("direction=%v, expected Net", b.Direction())
	}
	if b.Open() != b.Close() || b.Max() != b.Min() || b.Open() != num.FromInt(100) {
		t.Fatal("seed bar prices should all equal the seed tick price")
	}
	if b.Volume() != 0 || !b.Amount().IsZero() {
		t.Fatal("seed bar must carry zero volume and amount")
	}
	if b.CanMerge() {
		t.Fatal("stroke bars must not be mergeable")
	}
	if err := b.Merge(b); err != ErrMergeUnsupported {
		t.Fatalf("Merge error=%v, expected ErrMergeUnsupported", err)
	}
}

// Seed 100, threshold 2; 103 -> Long; 100 -> split, closed bar
// pinned at its max, successor Short open=103 close=100.
func TestDirectionThenSplit(t *testing.T) {
	b := NewStrokeBar(opt2(), mkTick("au2606", 0, 100, 10, 1000))

	if succ := b.Update(mkTick("au2606", 1, 103, 14, 1412)); succ != nil {
		t.Fatal("no split expected on the advance tick")
	}
	if b.Direction() != Long {
		t.Fatalf("direction=%v, expected Long", b.Direction())
	}
	if b.Close() != num.FromInt(103) {
		t.Fatalf("close=%s, expected 103", b.Close())
	}
	checkBounds(t, b)

	succ := b.Update(mkTick("au2606", 2, 100, 18, 1812))
	if succ == nil {
		t.Fatal("expected a split: max(103) - close(100) = 3 > threshold(2)")
	}
	if b.Close() != b.Max() || b.Close() != num.FromInt(103) {
		t.Fatalf("closed Long bar must be pinned to its max, close=%s max=%s", b.Close(), b.Max())
	}
	if b.CloseTick() != b.MaxTick() {
		t.Fatal("closed bar's close tick must be its max tick")
	}
	checkBounds(t, b)

	if succ.Direction() != Short {
		t.Fatalf("successor direction=%v, expected Short", succ.Direction())
	}
	if succ.Open() != num.FromInt(103) || succ.Close() != num.FromInt(100) {
		t.Fatalf("successor O/C=%s/%s, expected 103/100", succ.Open(), succ.Close())
	}
	checkBounds(t, succ)
}

func TestDirectionIsInclusiveAndIrreversible(t *testing.T) {
	b := NewStrokeBar(opt2(), mkTick("zn2604", 0, 100, 0, 0))
	b.Update(mkTick("zn2604", 1, 101, 0, 0))
	if b.Direction() != Net {
		t.Fatalf("move below threshold must stay Net, got %v", b.Direction())
	}
	b.Update(mkTick("zn2604", 2, 102, 0, 0))
	if b.Direction() != Long {
		t.Fatalf("close = open + threshold must set Long, got %v", b.Direction())
	}
	// Falling back inside the band must not revert to Net.
	b.Update(mkTick("zn2604", 3, 101, 0, 0))
	if b.Direction() != Long {
		t.Fatalf("direction reverted, got %v", b.Direction())
	}
}

func TestShortSplitPinsMin(t *testing.T) {
	b := NewStrokeBar(opt2(), mkTick("rb2605", 0, 100, 0, 0))
	b.Update(mkTick("rb2605", 1, 97, 0, 0))
	if b.Direction() != Short {
		t.Fatalf("direction=%v, expected Short", b.Direction())
	}
	succ := b.Update(mkTick("rb2605", 2, 100, 0, 0))
	if succ == nil {
		t.Fatal("expected split: min(97) < close(100) - threshold(2)")
	}
	if b.Close() != b.Min() || b.Close() != num.FromInt(97) {
		t.Fatalf("closed Short bar must be pinned to its min, close=%s min=%s", b.Close(), b.Min())
	}
	if succ.Direction() != Long {
		t.Fatalf("successor direction=%v, expected Long", succ.Direction())
	}
}

// The extreme of the discarded tail must not leak into the closed bar: after
// a Long split, a min tick newer than the new close tick is recomputed from
// the open and close ticks only.
func TestSplitRepairsStaleExtreme(t *testing.T) {
	b := NewStrokeBar(opt2(), mkTick("cu2607", 0, 100, 0, 0))
	b.Update(mkTick("cu2607", 1, 105, 10, 1050)) // Long, max at t=1
	b.Update(mkTick("cu2607", 2, 104, 20, 2090))
	succ := b.Update(mkTick("cu2607", 3, 99, 30, 3080)) // min at t=3, triggers split
	if succ == nil {
		t.Fatal("expected split")
	}
	// Closed bar now ends at t=1 (the max tick); its min tick at t=3 was in
	// the tail and must have been recomputed as min(open, close) = open.
	if got := b.MinTick().Time; got.After(b.CloseTick().Time) {
		t.Fatalf("stale min tick leaked into closed bar: min at %v, close at %v", got, b.CloseTick().Time)
	}
	if b.Min() != num.FromInt(100) {
		t.Fatalf("repaired min=%s, expected 100", b.Min())
	}
	checkBounds(t, b)
}

func TestVolumeAmountAndAvgPrice(t *testing.T) {
	open := mkTick("ag2606", 0, 100, 10, 1000)
	b := NewStrokeBar(opt2(), open)
	last := mkTick("ag2606", 1, 101, 16, 1606)
	b.Update(last)

	if b.Volume() != last.Volume-open.Volume {
		t.Fatalf("volume=%d, expected %d", b.Volume(), last.Volume-open.Volume)
	}
	if b.Amount() != last.Turnover.Sub(open.Turnover) {
		t.Fatalf("amount=%s, expected %s", b.Amount(), last.Turnover.Sub(open.Turnover))
	}
	wantAvg := num.DivVol(b.Amount(), b.Volume())
	if b.AvgPrice() != wantAvg {
		t.Fatalf("avgPrice=%s, expected %s", b.AvgPrice(), wantAvg)
	}

	// Zero volume falls back to the tick's own reported average price.
	seed := mkTick("ag2606", 2, 101, 16, 1606)
	flat := mkTick("ag2606", 3, 101, 16, 1606)
	flat.AvgPrice = num.MustParse("100.5")
	quiet := NewStrokeBar(opt2(), seed)
	quiet.Update(flat)
	if quiet.Volume() != 0 {
		t.Fatalf("volume=%d, expected 0", quiet.Volume())
	}
	if quiet.AvgPrice() != flat.AvgPrice {
		t.Fatalf("zero-volume avgPrice=%s, expected %s", quiet.AvgPrice(), flat.AvgPrice)
	}
}

func TestSegmenterTracksSeries(t *testing.T) {
	seg := NewSegmenter(opt2())
	ticks := []*md.Tick{
		mkTick("au2606", 0, 100, 0, 0),
		mkTick("au2606", 1, 103, 5, 515),
		mkTick("au2606", 2, 100, 9, 915),
		mkTick("au2606", 3, 104, 15, 1530),
	}
	var closed []*StrokeBar
	for _, tk := range ticks {
		if bar := seg.Feed(tk); bar != nil {
			closed = append(closed, bar)
		}
	}
	if len(closed) != 2 {
		t.Fatalf("closed bars=%d, expected 2", len(closed))
	}
	if closed[0].Direction() != Long || closed[1].Direction() != Short {
		t.Fatalf("series directions=%v,%v, expected Long,Short", closed[0].Direction(), closed[1].Direction())
	}
	series := seg.Series("au2606")
	if len(series.Closed) != 2 || series.Active == nil {
		t.Fatalf("series closed=%d active=%v", len(series.Closed), series.Active)
	}
	if series.Active.Direction() != Long {
		t.Fatalf("active direction=%v, expected Long", series.Active.Direction())
	}
	// Successive bars chain: each successor opens at its predecessor's close.
	if closed[1].Open() != closed[0].Close() {
		t.Fatal("successor must open at predecessor close")
	}
}

// A stream that never breaches the threshold ends as a valid, never-split
// Net bar.
func TestNetBarIsValidTerminal(t *testing.T) {
	seg := NewSegmenter(opt2())
	for i, p := range []int64{100, 101, 100, 101} {
		if bar := seg.Feed(mkTick("sn2606", i, p, int64(i), int64(i*100))); bar != nil {
			t.Fatal("Net bar must never split")
		}
	}
	active := seg.Active("sn2606")
	if active == nil || active.Direction() != Net {
		t.Fatalf("active=%v", active)
	}
	if active.CanMerge() {
		t.Fatal("Net bar must not be mergeable")
	}
	if len(seg.Closed("sn2606")) != 0 {
		t.Fatal("no closed bars expected")
	}
}
