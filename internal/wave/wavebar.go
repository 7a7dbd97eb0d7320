// Package wave builds directional price segments out of a raw tick stream.
// A stroke bar is the minimal trend unit: it grows tick by tick and is split
// into a successor of the opposite direction once price retraces beyond a
// configured threshold from its extreme.
package wave

import (
	"errors"
	"time"

	"tradlet-core/internal/md"
	"tradlet-core/internal/num"
)

// Direction of a bar or a position.
type Direction int

const (
	// Net means no direction established yet.
	Net Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "Long"
	case Short:
		return "Short"
	}
	return "Net"
}

// WaveType tags the aggregation level of a bar.
type WaveType int

const (
	// Stroke is the minimal directional segment.
	Stroke WaveType = iota
	// Segment is a merged sequence of strokes. Segment bars are produced by a
	// higher-level builder outside this core; only the contract exists here.
	Segment
)

func (w WaveType) String() string {
	if w == Segment {
		return "Segment"
	}
	return "Stroke"
}

// Level identifies a bar aggregation level for event routing.
type Level string

const (
	LevelStroke  Level = "stroke"
	LevelSegment Level = "segment"
)

// ErrMergeUnsupported is returned when a bar cannot be coalesced into a
// higher-level bar.
var ErrMergeUnsupported = errors.New("wave: merge operation is not supported")

// Bar is the generic directional price-bar contract. A bar is mutable only
// while it is the in-progress segment of its stream; once split or finalized
// it must be treated as immutable.
type Bar interface {
	Instrument() string
	Begin() time.Time
	End() time.Time
	Open() num.Price
	Close() num.Price
	Max() num.Price
	Min() num.Price
	Volume() int64
	Amount() num.Price
	OpenInterest() int64
	AvgPrice() num.Price
	MktAvgPrice() num.Price
	Direction() Direction
	WaveType() WaveType

	// The four defining ticks of the bar.
	OpenTick() *md.Tick
	CloseTick() *md.Tick
	MaxTick() *md.Tick
	MinTick() *md.Tick

	// CanMerge reports whether the bar may be coalesced into a higher-level
	// bar. Merge returns ErrMergeUnsupported when it may not.
	CanMerge() bool
	Merge(other Bar) error
}

// Series is the ordered bar history delivered with a Bar event: the closed
// bars oldest-first plus the current in-progress bar, if any.
type Series struct {
	Instrument string
	Level      Level
	Closed     []*StrokeBar
	Active     *StrokeBar
}
