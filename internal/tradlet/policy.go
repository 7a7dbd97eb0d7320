package tradlet

import (
	"encoding/json"
	"fmt"
	"time"

	"tradlet-core/internal/md"
	"tradlet-core/internal/num"
	"tradlet-core/internal/wave"
)

// PolicyKind enumerates the closed set of stop-policy variants. The kind set
// is fixed; dispatch is a switch, not a plugin hierarchy.
type PolicyKind string

const (
	PolicySimpleLoss PolicyKind = "SimpleLoss"
	// PolicyPriceTrendLoss triggers from the stroke-bar trend.
	// Deprecated: kept for old group configurations; prefer PriceStepGain.
	PolicyPriceTrendLoss PolicyKind = "PriceTrendLoss"
	PolicyMaxLifeTime    PolicyKind = "MaxLifeTime"
	PolicyEndTime        PolicyKind = "EndTime"
	PolicyPriceStepGain  PolicyKind = "PriceStepGain"
	// PolicyPriceTrendGain triggers from the stroke-bar trend.
	// Deprecated: kept for old group configurations; prefer PriceStepGain.
	PolicyPriceTrendGain PolicyKind = "PriceTrendGain"
)

// Decision is a fired exit: the price to close at and the policy that fired.
type Decision struct {
	PolicyID     string
	TriggerPrice num.Price
}

// PriceStep is one rung of a PriceStepGain ladder. Offsets are distances
// from the playbook's open price in the favorable direction.
type PriceStep struct {
	PriceOffset  num.Price // advance needed to activate this step
	LockInOffset num.Price // exit level locked in once the step is active
}

// StopPolicy is one policy instance: configuration fixed at creation plus
// the runtime state threaded alongside the playbook (only PriceStepGain
// carries runtime state, its ratchet index).
type StopPolicy struct {
	Kind PolicyKind

	StopPrice num.Price     // SimpleLoss
	MaxLife   time.Duration // MaxLifeTime
	EndTime   time.Time     // EndTime
	Steps     []PriceStep   // PriceStepGain

	activeStep int // PriceStepGain ratchet; -1 until the first step activates
}

// ID is the attribution tag recorded on the playbook when the policy fires.
func (sp *StopPolicy) ID() string { return string(sp.Kind) }

// ActiveStep returns the current ratchet index, -1 when no step is active.
func (sp *StopPolicy) ActiveStep() int { return sp.activeStep }

// EvalContext carries the event the policies are evaluated against. Tick is
// nil on a noop heartbeat; Series may be nil when no stroke history exists.
type EvalContext struct {
	Tick   *md.Tick
	Now    time.Time
	Series *wave.Series
}

// Evaluate tests the policy against the current tick or time. It returns nil
// when the policy does not fire. PriceStepGain may advance its ratchet as a
// side effect; the advance is monotonic and never reverts.
func (sp *StopPolicy) Evaluate(p *Playbook, ctx EvalContext) *Decision {
	switch sp.Kind {
	case PolicySimpleLoss:
		return sp.evalSimpleLoss(p, ctx)
	case PolicyMaxLifeTime:
		if ctx.Now.Sub(p.openTime) >= sp.MaxLife {
			return sp.decide(ctx)
		}
	case PolicyEndTime:
		if !ctx.Now.Before(sp.EndTime) {
			return sp.decide(ctx)
		}
	case PolicyPriceStepGain:
		return sp.evalPriceStepGain(p, ctx)
	case PolicyPriceTrendLoss, PolicyPriceTrendGain:
		return sp.evalPriceTrend(p, ctx)
	}
	return nil
}

func (sp *StopPolicy) evalSimpleLoss(p *Playbook, ctx EvalContext) *Decision {
	if ctx.Tick == nil {
		return nil
	}
	price := ctx.Tick.Price
	switch p.direction {
	case wave.Long:
		if !price.Greater(sp.StopPrice) {
			return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
		}
	case wave.Short:
		if !price.Less(sp.StopPrice) {
			return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
		}
	}
	return nil
}

func (sp *StopPolicy) evalPriceStepGain(p *Playbook, ctx EvalContext) *Decision {
	if ctx.Tick == nil || len(sp.Steps) == 0 {
		return nil
	}
	price := ctx.Tick.Price
	base := p.basePrice()

	// Advance the ratchet while price has passed the next step's activation
	// level. Advancing is monotonic: the active index never decreases.
	for sp.activeStep+1 < len(sp.Steps) {
		next := sp.Steps[sp.activeStep+1]
		if p.direction == wave.Long && !price.Less(base.Add(next.PriceOffset)) {
			sp.activeStep++
			continue
		}
		if p.direction == wave.Short && !price.Greater(base.Sub(next.PriceOffset)) {
			sp.activeStep++
			continue
		}
		break
	}
	if sp.activeStep < 0 {
		return nil
	}
	step := sp.Steps[sp.activeStep]
	if p.direction == wave.Long {
		lockIn := base.Add(step.LockInOffset)
		if !price.Greater(lockIn) {
			return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
		}
	} else {
		lockIn := base.Sub(step.LockInOffset)
		if !price.Less(lockIn) {
			return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
		}
	}
	return nil
}

// evalPriceTrend fires when the latest stroke bar runs against the position:
// the Loss variant only while the episode is under water, the Gain variant
// only while it is in profit.
func (sp *StopPolicy) evalPriceTrend(p *Playbook, ctx EvalContext) *Decision {
	if ctx.Tick == nil || ctx.Series == nil {
		return nil
	}
	latest := ctx.Series.Active
	if latest == nil || latest.Direction() == wave.Net {
		n := len(ctx.Series.Closed)
		if n == 0 {
			return nil
		}
		latest = ctx.Series.Closed[n-1]
	}
	if latest.Direction() == p.direction {
		return nil
	}
	price := ctx.Tick.Price
	base := p.basePrice()
	adverse := (p.direction == wave.Long && price.Less(base)) ||
		(p.direction == wave.Short && price.Greater(base))
	if sp.Kind == PolicyPriceTrendLoss && adverse {
		return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
	}
	if sp.Kind == PolicyPriceTrendGain && !adverse {
		return &Decision{PolicyID: sp.ID(), TriggerPrice: price}
	}
	return nil
}

func (sp *StopPolicy) decide(ctx EvalContext) *Decision {
	d := &Decision{PolicyID: sp.ID()}
	if ctx.Tick != nil {
		d.TriggerPrice = ctx.Tick.Price
	}
	return d
}

// StepSetting is the serialized form of one PriceStepGain rung.
type StepSetting struct {
	PriceOffset  string `json:"priceOffset"`
	LockInOffset string `json:"lockInOffset"`
}

// StopSettings is the serialized stop-policy configuration attached to a
// playbook at creation (the playbook's stop.settings attribute).
type StopSettings struct {
	SimpleLoss     string        `json:"simpleLoss,omitempty"`
	PriceTrendLoss bool          `json:"priceTrendLoss,omitempty"`
	MaxLifeTime    string        `json:"maxLifeTime,omitempty"`
	EndTime        string        `json:"endTime,omitempty"`
	PriceStepGain  []StepSetting `json:"priceStepGain,omitempty"`
	PriceTrendGain bool          `json:"priceTrendGain,omitempty"`
}

// ParseStopSettings builds policy instances from the JSON configuration.
// Attachment order is fixed: SimpleLoss, PriceTrendLoss, MaxLifeTime,
// EndTime, PriceStepGain, PriceTrendGain; evaluation walks this order and
// the first trigger wins. EndTime accepts "2006-01-02 15:04:05" or a
// time-of-day "15:04:05" resolved against now's date.
func ParseStopSettings(text string, now time.Time) ([]*StopPolicy, error) {
	if text == "" {
		return nil, nil
	}
	var cfg StopSettings
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var policies []*StopPolicy

	if cfg.SimpleLoss != "" {
		price, err := num.Parse(cfg.SimpleLoss)
		if err != nil {
			return nil, fmt.Errorf("simpleLoss: %w", err)
		}
		policies = append(policies, &StopPolicy{Kind: PolicySimpleLoss, StopPrice: price, activeStep: -1})
	}
	if cfg.PriceTrendLoss {
		policies = append(policies, &StopPolicy{Kind: PolicyPriceTrendLoss, activeStep: -1})
	}
	if cfg.MaxLifeTime != "" {
		d, err := time.ParseDuration(cfg.MaxLifeTime)
		if err != nil {
			return nil, fmt.Errorf("maxLifeTime: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("maxLifeTime: non-positive duration %q", cfg.MaxLifeTime)
		}
		policies = append(policies, &StopPolicy{Kind: PolicyMaxLifeTime, MaxLife: d, activeStep: -1})
	}
	if cfg.EndTime != "" {
		at, err := parseEndTime(cfg.EndTime, now)
		if err != nil {
			return nil, fmt.Errorf("endTime: %w", err)
		}
		policies = append(policies, &StopPolicy{Kind: PolicyEndTime, EndTime: at, activeStep: -1})
	}
	if len(cfg.PriceStepGain) > 0 {
		steps := make([]PriceStep, 0, len(cfg.PriceStepGain))
		for i, s := range cfg.PriceStepGain {
			po, err := num.Parse(s.PriceOffset)
			if err != nil {
				return nil, fmt.Errorf("priceStepGain[%d].priceOffset: %w", i, err)
			}
			lo, err := num.Parse(s.LockInOffset)
			if err != nil {
				return nil, fmt.Errorf("priceStepGain[%d].lockInOffset: %w", i, err)
			}
			steps = append(steps, PriceStep{PriceOffset: po, LockInOffset: lo})
		}
		policies = append(policies, &StopPolicy{Kind: PolicyPriceStepGain, Steps: steps, activeStep: -1})
	}
	if cfg.PriceTrendGain {
		policies = append(policies, &StopPolicy{Kind: PolicyPriceTrendGain, activeStep: -1})
	}
	return policies, nil
}

func parseEndTime(s string, now time.Time) (time.Time, error) {
	if at, err := time.ParseInLocation("2006-01-02 15:04:05", s, now.Location()); err == nil {
		return at, nil
	}
	clock, err := time.ParseInLocation("15:04:05", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location()), nil
}

// EvaluatePolicies walks the playbook's policies in attachment order and
// returns the first decision that fires; later policies are not consulted
// for that event.
func EvaluatePolicies(p *Playbook, ctx EvalContext) *Decision {
	for _, sp := range p.policies {
		if d := sp.Evaluate(p, ctx); d != nil {
			return d
		}
	}
	return nil
}
