package tradlet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradlet-core/internal/exec"
	"tradlet-core/internal/num"
	"tradlet-core/internal/wave"
)

// VolumeCounters are the five playbook volume counters. All of them are
// monotonic accumulations except Pos, which is the signed current exposure.
type VolumeCounters struct {
	Opening int // open order quantity requested
	Open    int // open quantity filled
	Closing int // close order quantity requested
	Close   int // close quantity filled
	Pos     int // signed current exposure
}

// MoneyCounters are the four playbook money counters.
type MoneyCounters struct {
	Opening num.Price // requested open price
	Open    num.Price // actual open price
	Closing num.Price // requested close price
	Close   num.Price // actual close price
}

// OpenRequest describes one open decision made by a trading rule.
type OpenRequest struct {
	Template     string
	Instrument   string
	Direction    wave.Direction // Long or Short
	Qty          int
	Price        num.Price
	OpenPolicyID string // which rule/policy demanded the open
	StopSettings string // JSON stop-policy configuration, empty for none
}

// Playbook is the state machine for a single open-to-close trading episode.
// It owns the volume/money bookkeeping and the stop policies attached at
// creation. A playbook is owned by exactly one group and mutated only on
// that group's worker.
type Playbook struct {
	id         string
	template   string
	instrument string
	direction  wave.Direction
	state      PlaybookState
	vol        VolumeCounters
	money      MoneyCounters

	openPolicyID  string
	closePolicyID string

	openTime time.Time
	policies []*StopPolicy
	attrs    map[string]string
}

// AttrStopSettings holds the serialized stop-policy configuration on the
// playbook's attribute map.
const AttrStopSettings = "stop.settings"

// NewPlaybook creates a playbook in Opening state. The stop settings are
// parsed eagerly so a malformed configuration surfaces before any order is
// placed.
func NewPlaybook(req OpenRequest, now time.Time) (*Playbook, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("tradlet: open qty must be positive, got %d", req.Qty)
	}
	if req.Direction != wave.Long && req.Direction != wave.Short {
		return nil, fmt.Errorf("tradlet: open direction must be Long or Short, got %s", req.Direction)
	}
	policies, err := ParseStopSettings(req.StopSettings, now)
	if err != nil {
		return nil, fmt.Errorf("tradlet: stop settings: %w", err)
	}
	p := &Playbook{
		id:           uuid.NewString(),
		template:     req.Template,
		instrument:   req.Instrument,
		direction:    req.Direction,
		state:        StateOpening,
		openPolicyID: req.OpenPolicyID,
		openTime:     now,
		policies:     policies,
		attrs:        map[string]string{},
	}
	if req.StopSettings != "" {
		p.attrs[AttrStopSettings] = req.StopSettings
	}
	p.vol.Opening = req.Qty
	p.money.Opening = req.Price
	return p, nil
}

func (p *Playbook) ID() string                 { return p.id }
func (p *Playbook) Template() string           { return p.template }
func (p *Playbook) Instrument() string         { return p.instrument }
func (p *Playbook) Direction() wave.Direction  { return p.direction }
func (p *Playbook) State() PlaybookState       { return p.state }
func (p *Playbook) Volume() VolumeCounters     { return p.vol }
func (p *Playbook) Money() MoneyCounters       { return p.money }
func (p *Playbook) OpenTime() time.Time        { return p.openTime }
func (p *Playbook) Policies() []*StopPolicy    { return p.policies }
func (p *Playbook) Attr(key string) string     { return p.attrs[key] }

// ReportFill accumulates a fill and advances the state machine when the
// requested quantity is fully filled.
func (p *Playbook) ReportFill(action exec.Action, qty int, price num.Price) error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	if qty <= 0 {
		return fmt.Errorf("tradlet: fill qty must be positive, got %d", qty)
	}
	switch action {
	case exec.ActionOpen:
		if p.state != StateOpening {
			return fmt.Errorf("%w: open fill in state %s", ErrBadTransition, p.state)
		}
		p.vol.Open += qty
		p.money.Open = price
		if p.direction == wave.Short {
			p.vol.Pos -= qty
		} else {
			p.vol.Pos += qty
		}
		if p.vol.Open >= p.vol.Opening {
			p.state = StateOpened
		}
	case exec.ActionClose:
		if p.state != StateClosing && p.state != StateForceClosing {
			return fmt.Errorf("%w: close fill in state %s", ErrBadTransition, p.state)
		}
		p.vol.Close += qty
		p.money.Close = price
		if p.direction == wave.Short {
			p.vol.Pos += qty
		} else {
			p.vol.Pos -= qty
		}
		if p.vol.Close >= p.vol.Closing {
			p.state = StateClosed
		}
	default:
		return fmt.Errorf("tradlet: unknown fill action %q", action)
	}
	return nil
}

// RequestClose transitions Opened to Closing, recording which policy
// demanded the close. The full open quantity is requested.
func (p *Playbook) RequestClose(policyID string, price num.Price) error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	if p.state != StateOpened {
		return fmt.Errorf("%w: close requested in state %s", ErrBadTransition, p.state)
	}
	p.state = StateClosing
	p.closePolicyID = policyID
	p.vol.Closing = p.vol.Open
	p.money.Closing = price
	return nil
}

// ForceClose transitions Closing to ForceClosing after an ordinary close
// attempt failed or timed out.
func (p *Playbook) ForceClose() error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	if p.state != StateClosing {
		return fmt.Errorf("%w: force close in state %s", ErrBadTransition, p.state)
	}
	p.state = StateForceClosing
	return nil
}

// RequestCancel transitions Opening to Canceling when the open order is
// being abandoned before any fill.
func (p *Playbook) RequestCancel() error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	if p.state != StateOpening {
		return fmt.Errorf("%w: cancel requested in state %s", ErrBadTransition, p.state)
	}
	p.state = StateCanceling
	return nil
}

// ConfirmCancel completes a cancellation with zero position.
func (p *Playbook) ConfirmCancel() error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	if p.state != StateCanceling {
		return fmt.Errorf("%w: cancel confirmed in state %s", ErrBadTransition, p.state)
	}
	if p.vol.Pos != 0 {
		return fmt.Errorf("%w: cancel with non-zero position %d", ErrBadTransition, p.vol.Pos)
	}
	p.state = StateCanceled
	return nil
}

// ReportFailure forces any non-terminal state to Failed.
func (p *Playbook) ReportFailure() error {
	if p.state.Done() {
		return ErrPlaybookDone
	}
	p.state = StateFailed
	return nil
}

// VolumeRecord is the flat volume view of the bookkeeping export.
type VolumeRecord struct {
	Opening int `json:"Opening"`
	Open    int `json:"Open"`
	Closing int `json:"Closing"`
	Close   int `json:"Close"`
	Pos     int `json:"Pos"`
}

// MoneyRecord renders the money counters as decimal strings at the fixed
// price scale.
type MoneyRecord struct {
	Opening string `json:"Opening"`
	Open    string `json:"Open"`
	Closing string `json:"Closing"`
	Close   string `json:"Close"`
}

// ActionRecord attributes the open and close decisions to policy ids.
type ActionRecord struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Record is the read-only bookkeeping snapshot exported for reporting. It is
// not a control surface.
type Record struct {
	ID         string       `json:"id"`
	Template   string       `json:"template"`
	Instrument string       `json:"instrument"`
	Direction  string       `json:"direction"`
	State      string       `json:"state"`
	Volume     VolumeRecord `json:"volume"`
	Money      MoneyRecord  `json:"money"`
	Action     ActionRecord `json:"action"`
	OpenTime   time.Time    `json:"openTime"`
}

// Snapshot flattens the playbook's counters into a Record.
func (p *Playbook) Snapshot() Record {
	return Record{
		ID:         p.id,
		Template:   p.template,
		Instrument: p.instrument,
		Direction:  p.direction.String(),
		State:      p.state.String(),
		Volume: VolumeRecord{
			Opening: p.vol.Opening,
			Open:    p.vol.Open,
			Closing: p.vol.Closing,
			Close:   p.vol.Close,
			Pos:     p.vol.Pos,
		},
		Money: MoneyRecord{
			Opening: p.money.Opening.String(),
			Open:    p.money.Open.String(),
			Closing: p.money.Closing.String(),
			Close:   p.money.Close.String(),
		},
		Action: ActionRecord{
			Open:  p.openPolicyID,
			Close: p.closePolicyID,
		},
		OpenTime: p.openTime,
	}
}

// basePrice is the reference price for offset-based policies: the actual
// open price once filled, the requested price before that.
func (p *Playbook) basePrice() num.Price {
	if !p.money.Open.IsZero() {
		return p.money.Open
	}
	return p.money.Opening
}
