package tradlet

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradlet-core/internal/exec"
	"tradlet-core/internal/md"
	"tradlet-core/internal/monitor"
	"tradlet-core/internal/num"
	"tradlet-core/internal/wave"
)

// Interest declares an instrument a group wants events for, with an optional
// bar-level filter; an empty Level matches every level.
type Interest struct {
	Instrument string
	Level      wave.Level
}

// GroupConfig is the constructed form of one group descriptor.
type GroupConfig struct {
	ID              string
	State           GroupState
	Interests       []Interest
	StrokeThreshold num.Price
	OpenTimeout     time.Duration // cancel the open leg after this long in Opening; 0 disables
}

// Group is a named set of instruments, trading rules and live playbooks
// sharing one sequential event worker. All mutation happens on that worker;
// the internal lock only makes read-only snapshots safe for the API
// goroutine.
type Group struct {
	cfg GroupConfig
	gw  exec.Gateway
	log zerolog.Logger
	now func() time.Time

	mu        sync.RWMutex
	state     GroupState
	playbooks map[string]*Playbook
	pbOrders  map[string]string // playbook id -> outstanding order id

	tradlets   []Tradlet
	seg        *wave.Segmenter
	onTerminal func(Record)
}

func NewGroup(cfg GroupConfig, gw exec.Gateway, log zerolog.Logger) *Group {
	g := &Group{
		cfg:       cfg,
		gw:        gw,
		log:       log.With().Str("group", cfg.ID).Logger(),
		now:       time.Now,
		state:     cfg.State,
		playbooks: make(map[string]*Playbook),
		pbOrders:  make(map[string]string),
		seg:       wave.NewSegmenter(wave.Option{Threshold: cfg.StrokeThreshold}),
	}
	g.Install(&StopTradlet{g: g})
	return g
}

func (g *Group) ID() string { return g.cfg.ID }

func (g *Group) State() GroupState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// SetOnTerminal registers the archive hook invoked with the bookkeeping
// record of every playbook that reaches a terminal state. Wire before the
// engine starts.
func (g *Group) SetOnTerminal(fn func(Record)) { g.onTerminal = fn }

// SetNow overrides the clock. Test hook.
func (g *Group) SetNow(now func() time.Time) { g.now = now }

// Install appends a tradlet; it will observe every event after the built-in
// stop tradlet. Wire before the engine starts.
func (g *Group) Install(t Tradlet) { g.tradlets = append(g.tradlets, t) }

// Segmenter exposes the group-owned stroke segmenter to its tradlets.
func (g *Group) Segmenter() *wave.Segmenter { return g.seg }

// InterestOn reports whether the group wants events for the instrument, and
// for bars, the given aggregation level.
func (g *Group) InterestOn(instrument string, level wave.Level) bool {
	for _, in := range g.cfg.Interests {
		if in.Instrument != instrument {
			continue
		}
		if level == "" || in.Level == "" || in.Level == level {
			return true
		}
	}
	return false
}

// setState applies an operator command or configuration reload. Runs on the
// group worker.
func (g *Group) setState(s GroupState) {
	g.mu.Lock()
	old := g.state
	g.state = s
	g.mu.Unlock()
	if old != s {
		g.log.Info().Stringer("from", old).Stringer("to", s).Msg("group state changed")
	}
}

// OpenPlaybook creates a playbook and fires its open order. Only an Enabled
// group may open; lower states reject with ErrGroupState.
func (g *Group) OpenPlaybook(req OpenRequest) (*Playbook, error) {
	if s := g.State(); s != GroupEnabled {
		return nil, fmt.Errorf("%w %s: open forbidden", ErrGroupState, s)
	}
	pb, err := NewPlaybook(req, g.now())
	if err != nil {
		return nil, err
	}
	orderID := uuid.NewString()
	g.mu.Lock()
	g.playbooks[pb.id] = pb
	g.pbOrders[pb.id] = orderID
	g.mu.Unlock()

	err = g.gw.SubmitOrder(exec.OrderRequest{
		OrderID:    orderID,
		GroupID:    g.cfg.ID,
		PlaybookID: pb.id,
		Instrument: pb.instrument,
		Direction:  pb.direction,
		Action:     exec.ActionOpen,
		Qty:        req.Qty,
		Price:      req.Price,
	})
	if err != nil {
		g.log.Error().Err(err).Str("playbook", pb.id).Msg("open order submit failed")
		g.failPlaybook(pb)
		return nil, err
	}
	g.log.Info().Str("playbook", pb.id).Str("instrument", pb.instrument).
		Stringer("direction", pb.direction).Int("qty", req.Qty).Stringer("px", req.Price).
		Msg("playbook opening")
	return pb, nil
}

// Playbooks returns the live playbooks. Engine-thread use only.
func (g *Group) Playbooks() []*Playbook {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Playbook, 0, len(g.playbooks))
	for _, pb := range g.playbooks {
		out = append(out, pb)
	}
	return out
}

// closePlaybook starts the close leg after a stop policy fired or an
// external close was requested.
func (g *Group) closePlaybook(pb *Playbook, policyID string, price num.Price) {
	g.mu.Lock()
	err := pb.RequestClose(policyID, price)
	g.mu.Unlock()
	if err != nil {
		g.log.Warn().Err(err).Str("playbook", pb.id).Msg("close request rejected")
		return
	}
	g.submitClose(pb, price)
	g.log.Info().Str("playbook", pb.id).Str("policy", policyID).
		Stringer("px", price).Msg("playbook closing")
}

func (g *Group) submitClose(pb *Playbook, price num.Price) {
	orderID := uuid.NewString()
	g.mu.Lock()
	g.pbOrders[pb.id] = orderID
	g.mu.Unlock()
	err := g.gw.SubmitOrder(exec.OrderRequest{
		OrderID:    orderID,
		GroupID:    g.cfg.ID,
		PlaybookID: pb.id,
		Instrument: pb.instrument,
		Direction:  pb.direction,
		Action:     exec.ActionClose,
		Qty:        pb.vol.Closing - pb.vol.Close,
		Price:      price,
	})
	if err != nil {
		g.log.Error().Err(err).Str("playbook", pb.id).Msg("close order submit failed")
		g.failPlaybook(pb)
	}
}

// handleReport reconciles an asynchronous execution notification. Runs on
// the group worker, so playbook bookkeeping stays single-writer.
func (g *Group) handleReport(rep exec.Report) {
	g.mu.RLock()
	pb := g.playbooks[rep.PlaybookID]
	g.mu.RUnlock()
	if pb == nil {
		g.log.Warn().Str("playbook", rep.PlaybookID).Stringer("kind", rep.Kind).
			Msg("report for unknown playbook")
		return
	}
	switch rep.Kind {
	case exec.ReportFill:
		g.mu.Lock()
		err := pb.ReportFill(rep.Action, rep.Qty, rep.Price)
		g.mu.Unlock()
		if err != nil {
			g.log.Error().Err(err).Str("playbook", pb.id).Msg("fill could not be reconciled")
			g.failPlaybook(pb)
			break
		}
		g.log.Info().Str("playbook", pb.id).Str("action", string(rep.Action)).
			Int("qty", rep.Qty).Stringer("px", rep.Price).Stringer("state", pb.State()).
			Msg("fill")
	case exec.ReportCancel:
		g.handleCancel(pb, rep)
	case exec.ReportReject:
		g.handleReject(pb, rep)
	}
	g.finalizeIfDone(pb)
}

func (g *Group) handleCancel(pb *Playbook, rep exec.Report) {
	switch rep.Action {
	case exec.ActionOpen:
		g.mu.Lock()
		if pb.State() == StateOpening {
			if err := pb.RequestCancel(); err != nil {
				g.log.Warn().Err(err).Str("playbook", pb.id).Msg("cancel in unexpected state")
			}
		}
		err := pb.ConfirmCancel()
		g.mu.Unlock()
		if err != nil {
			g.log.Error().Err(err).Str("playbook", pb.id).Msg("cancel could not be reconciled")
			g.failPlaybook(pb)
		}
	case exec.ActionClose:
		// An ordinary close that came back canceled escalates to a forced
		// close; a canceled forced close is unrecoverable.
		g.mu.Lock()
		state := pb.State()
		var err error
		if state == StateClosing {
			err = pb.ForceClose()
		}
		g.mu.Unlock()
		if state != StateClosing || err != nil {
			g.failPlaybook(pb)
			return
		}
		g.log.Warn().Str("playbook", pb.id).Msg("close canceled, forcing close")
		g.submitClose(pb, pb.Money().Closing)
	}
}

func (g *Group) handleReject(pb *Playbook, rep exec.Report) {
	switch rep.Action {
	case exec.ActionOpen:
		g.mu.Lock()
		err := pb.RequestCancel()
		if err == nil {
			err = pb.ConfirmCancel()
		}
		g.mu.Unlock()
		if err != nil {
			g.failPlaybook(pb)
			return
		}
		g.log.Warn().Str("playbook", pb.id).Str("reason", rep.Reason).Msg("open rejected, canceled")
	case exec.ActionClose:
		g.mu.Lock()
		state := pb.State()
		var err error
		if state == StateClosing {
			err = pb.ForceClose()
		}
		g.mu.Unlock()
		if state != StateClosing || err != nil {
			g.failPlaybook(pb)
			return
		}
		g.log.Warn().Str("playbook", pb.id).Str("reason", rep.Reason).Msg("close rejected, forcing close")
		g.submitClose(pb, pb.Money().Closing)
	}
}

func (g *Group) failPlaybook(pb *Playbook) {
	g.mu.Lock()
	err := pb.ReportFailure()
	g.mu.Unlock()
	if err != nil {
		return
	}
	g.log.Error().Str("playbook", pb.id).Msg("playbook failed, manual intervention required")
	g.finalizeIfDone(pb)
}

// finalizeIfDone archives and drops a playbook once its state is terminal.
func (g *Group) finalizeIfDone(pb *Playbook) {
	if !pb.State().Done() {
		return
	}
	g.mu.Lock()
	_, live := g.playbooks[pb.id]
	delete(g.playbooks, pb.id)
	delete(g.pbOrders, pb.id)
	g.mu.Unlock()
	if !live {
		return
	}
	monitor.PlaybooksTerminal.WithLabelValues(g.cfg.ID, pb.State().String()).Inc()
	if g.onTerminal != nil {
		g.onTerminal(pb.Snapshot())
	}
	g.log.Info().Str("playbook", pb.id).Stringer("state", pb.State()).Msg("playbook archived")
}

// onTick runs on the group worker for every routed tick. A Disabled group
// processes nothing; a Suspended group still updates the segmenter and
// internal state but initiates no trades.
func (g *Group) onTick(t *md.Tick) {
	if g.State() == GroupDisabled {
		return
	}
	if g.InterestOn(t.Instrument, "") {
		if closed := g.seg.Feed(t); closed != nil {
			monitor.StrokeSplits.WithLabelValues(t.Instrument).Inc()
		}
	}
	g.checkOpenTimeouts()
	for _, tl := range g.tradlets {
		tl.OnTick(t)
	}
}

func (g *Group) onBar(instrument string, level wave.Level, series *wave.Series) {
	if g.State() == GroupDisabled {
		return
	}
	for _, tl := range g.tradlets {
		tl.OnBar(instrument, level, series)
	}
}

func (g *Group) onNoop() {
	if g.State() == GroupDisabled {
		return
	}
	g.checkOpenTimeouts()
	for _, tl := range g.tradlets {
		tl.OnNoop(g.now())
	}
}

// checkOpenTimeouts cancels open orders stuck in Opening beyond the
// configured budget. The cancel confirmation arrives later as a report.
func (g *Group) checkOpenTimeouts() {
	if g.cfg.OpenTimeout <= 0 {
		return
	}
	now := g.now()
	for _, pb := range g.Playbooks() {
		if pb.State() != StateOpening || now.Sub(pb.OpenTime()) < g.cfg.OpenTimeout {
			continue
		}
		g.mu.RLock()
		orderID := g.pbOrders[pb.id]
		g.mu.RUnlock()
		g.log.Warn().Str("playbook", pb.id).Msg("open timed out, canceling")
		g.mu.Lock()
		err := pb.RequestCancel()
		g.mu.Unlock()
		if err != nil {
			continue
		}
		if err := g.gw.CancelOrder(orderID); err != nil {
			// Likely filled in the meantime; the fill report will arrive.
			g.log.Warn().Err(err).Str("playbook", pb.id).Msg("cancel failed")
		}
	}
}

// GroupView is the read-only snapshot served by the operator API.
type GroupView struct {
	ID        string   `json:"id"`
	State     string   `json:"state"`
	Interests []string `json:"instruments"`
	Playbooks []Record `json:"playbooks"`
}

// Snapshot builds a GroupView. Safe to call from the API goroutine.
func (g *Group) Snapshot() GroupView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v := GroupView{ID: g.cfg.ID, State: g.state.String()}
	for _, in := range g.cfg.Interests {
		s := in.Instrument
		if in.Level != "" {
			s += ":" + string(in.Level)
		}
		v.Interests = append(v.Interests, s)
	}
	for _, pb := range g.playbooks {
		v.Playbooks = append(v.Playbooks, pb.Snapshot())
	}
	return v
}
