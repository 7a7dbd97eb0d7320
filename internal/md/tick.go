// Package md defines the market-data boundary: the tick snapshot consumed by
// the rest of the core and the websocket feed client that produces it.
package md

import (
	"time"

	"tradlet-core/internal/num"
)

// Tick is an immutable market-data snapshot. The upstream feed guarantees
// that Time, Volume and Turnover are non-decreasing within one instrument's
// session; the core does not re-validate that contract.
type Tick struct {
	Instrument   string
	Time         time.Time
	Price        num.Price // last traded price
	Volume       int64     // cumulative session volume
	Turnover     num.Price // cumulative session turnover
	OpenInterest int64
	AvgPrice     num.Price // session average price reported by the feed
	High         num.Price // session high, zero when the feed omits it
	Low          num.Price // session low, zero when the feed omits it
}

// Listener receives every tick from the feed in arrival order.
type Listener interface {
	OnTick(t *Tick)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(t *Tick)

func (f ListenerFunc) OnTick(t *Tick) { f(t) }
