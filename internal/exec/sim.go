package exec

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SimGateway fills every order at its requested price after an optional
// delay. It backs dry-run operation and tests; a canceled order that has not
// filled yet reports a cancel instead.
type SimGateway struct {
	handler ReportHandler
	delay   time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]OrderRequest
	reject  bool
}

func NewSimGateway(handler ReportHandler, delay time.Duration, log zerolog.Logger) *SimGateway {
	return &SimGateway{
		handler: handler,
		delay:   delay,
		log:     log.With().Str("component", "sim-gateway").Logger(),
		pending: make(map[string]OrderRequest),
	}
}

// RejectNext makes the next submitted order report a rejection. Test hook.
func (g *SimGateway) RejectNext() {
	g.mu.Lock()
	g.reject = true
	g.mu.Unlock()
}

func (g *SimGateway) SubmitOrder(req OrderRequest) error {
	if req.Qty <= 0 {
		return fmt.Errorf("exec: order %s has non-positive qty %d", req.OrderID, req.Qty)
	}
	g.mu.Lock()
	reject := g.reject
	g.reject = false
	if !reject {
		g.pending[req.OrderID] = req
	}
	g.mu.Unlock()

	g.log.Debug().Str("order", req.OrderID).Str("instrument", req.Instrument).
		Str("action", string(req.Action)).Int("qty", req.Qty).Stringer("px", req.Price).
		Msg("order submitted")

	if reject {
		go g.handler(Report{
			OrderID: req.OrderID, GroupID: req.GroupID, PlaybookID: req.PlaybookID,
			Kind: ReportReject, Action: req.Action, Reason: "rejected by sim gateway",
		})
		return nil
	}

	go func() {
		if g.delay > 0 {
			time.Sleep(g.delay)
		}
		g.mu.Lock()
		_, ok := g.pending[req.OrderID]
		if ok {
			delete(g.pending, req.OrderID)
		}
		g.mu.Unlock()
		if !ok {
			return // canceled before the fill
		}
		g.handler(Report{
			OrderID: req.OrderID, GroupID: req.GroupID, PlaybookID: req.PlaybookID,
			Kind: ReportFill, Action: req.Action, Qty: req.Qty, Price: req.Price,
		})
	}()
	return nil
}

func (g *SimGateway) CancelOrder(orderID string) error {
	g.mu.Lock()
	req, ok := g.pending[orderID]
	if ok {
		delete(g.pending, orderID)
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("exec: order %s not pending", orderID)
	}
	go g.handler(Report{
		OrderID: req.OrderID, GroupID: req.GroupID, PlaybookID: req.PlaybookID,
		Kind: ReportCancel, Action: req.Action, Reason: "canceled",
	})
	return nil
}
