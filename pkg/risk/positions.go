package risk

import "riskwatch/pkg/broker"

// RuleState holds the per-position markers that make close actions one-shot
// across ticks. Entries are dropped when the position id disappears from the
// snapshot, so a new position reusing the id starts fresh.
type RuleState struct {
	NotifiedTarget   bool `msgpack:"notified_target"`
	NotifiedStoploss bool `msgpack:"notified_stoploss"`
	CloseRequested   bool `msgpack:"close_requested"`
}

// CloseIntent is a per-position close decision with the rule that fired.
type CloseIntent struct {
	Position broker.PositionSnapshot
	Reason   CloseReason
}

// PositionRuleEvaluator applies percentage target/stoploss rules to each
// position snapshot independently.
type PositionRuleEvaluator struct {
	targetEnabled   bool
	targetPercent   float64
	stoplossEnabled bool
	stoplossPercent float64

	state map[string]*RuleState
}

func NewPositionRuleEvaluator(cfg *Config) *PositionRuleEvaluator {
	return &PositionRuleEvaluator{
		targetEnabled:   cfg.PositionTargetEnabled,
		targetPercent:   cfg.PositionTargetPercent,
		stoplossEnabled: cfg.PositionStoplossEnabled,
		stoplossPercent: cfg.PositionStoplossPercent,
		state:           make(map[string]*RuleState),
	}
}

// Evaluate prunes state for vanished positions, then emits at most one close
// intent per position per rule. A position already marked close-requested is
// skipped even while its snapshot still appears.
func (e *PositionRuleEvaluator) Evaluate(positions []broker.PositionSnapshot) []CloseIntent {
	e.prune(positions)

	var intents []CloseIntent
	for _, p := range positions {
		st := e.stateFor(p.ID)
		if st.CloseRequested {
			continue
		}
		if e.targetEnabled && p.PnlPercent >= e.targetPercent && !st.NotifiedTarget {
			st.NotifiedTarget = true
			intents = append(intents, CloseIntent{Position: p, Reason: CloseTarget})
			continue
		}
		if e.stoplossEnabled && p.PnlPercent <= -e.stoplossPercent && !st.NotifiedStoploss {
			st.NotifiedStoploss = true
			intents = append(intents, CloseIntent{Position: p, Reason: CloseStoploss})
		}
	}
	return intents
}

// MarkCloseRequested records a confirmed close request so the position is
// not re-evaluated while the broker catches up.
func (e *PositionRuleEvaluator) MarkCloseRequested(id string) {
	e.stateFor(id).CloseRequested = true
}

func (e *PositionRuleEvaluator) Reset() {
	e.state = make(map[string]*RuleState)
}

func (e *PositionRuleEvaluator) stateFor(id string) *RuleState {
	st, ok := e.state[id]
	if !ok {
		st = &RuleState{}
		e.state[id] = st
	}
	return st
}

func (e *PositionRuleEvaluator) prune(positions []broker.PositionSnapshot) {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		seen[p.ID] = struct{}{}
	}
	for id := range e.state {
		if _, ok := seen[id]; !ok {
			delete(e.state, id)
		}
	}
}

// Snapshot copies the current rule state for persistence.
func (e *PositionRuleEvaluator) Snapshot() map[string]RuleState {
	out := make(map[string]RuleState, len(e.state))
	for id, st := range e.state {
		out[id] = *st
	}
	return out
}

// RestoreSnapshot replaces the rule state after a mid-day restart.
func (e *PositionRuleEvaluator) RestoreSnapshot(saved map[string]RuleState) {
	e.state = make(map[string]*RuleState, len(saved))
	for id, st := range saved {
		cp := st
		e.state[id] = &cp
	}
}
