package risk

import (
	"context"
	"time"

	"riskwatch/pkg/broker"
	"riskwatch/pkg/notify"
)

// ActionKind identifies a side effect decided by the engine.
type ActionKind string

const (
	ActionHaltDay          ActionKind = "halt_day"
	ActionClosePosition    ActionKind = "close_position"
	ActionCancelOrders     ActionKind = "cancel_orders"
	ActionInvokeKillSwitch ActionKind = "invoke_kill_switch"
	ActionNotify           ActionKind = "notify"
)

// HaltReason records which day-level rule fired.
type HaltReason string

const (
	HaltDailyStoploss HaltReason = "daily_stoploss"
	HaltDailyTarget   HaltReason = "daily_target"
	HaltTrailingStop  HaltReason = "trailing_stop"
)

// StoplossClass reports whether the reason counts as a stoploss for
// kill-switch purposes. A trailing-stop breach is a stoploss variant.
func (r HaltReason) StoplossClass() bool {
	return r == HaltDailyStoploss || r == HaltTrailingStop
}

// CloseReason records which per-position rule requested a close.
type CloseReason string

const (
	CloseTarget   CloseReason = "target"
	CloseStoploss CloseReason = "stoploss"
	CloseHalt     CloseReason = "day_halt"
)

// Action is one decided side effect, produced by the engine and executed by
// the Dispatcher. Only the fields relevant to Kind are populated.
type Action struct {
	Kind        ActionKind
	Reason      HaltReason
	Pnl         float64
	Limit       float64
	KillSwitch  bool
	Position    broker.PositionSnapshot
	CloseReason CloseReason
	Message     notify.Message
}

// Event is an audit record of an executed (or failed) side effect.
type Event struct {
	Time   time.Time `json:"time" msgpack:"time"`
	Kind   string    `json:"kind" msgpack:"kind"`
	Symbol string    `json:"symbol,omitempty" msgpack:"symbol,omitempty"`
	Reason string    `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Pnl    float64   `json:"pnl,omitempty" msgpack:"pnl,omitempty"`
	Detail string    `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// EventRecorder receives audit events. Implementations must not block the
// tick for long and must swallow their own failures.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RecordEvent(context.Context, Event) {}

type multiRecorder []EventRecorder

// MultiRecorder fans events out to every recorder in order.
func MultiRecorder(recorders ...EventRecorder) EventRecorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) RecordEvent(ctx context.Context, ev Event) {
	for _, r := range m {
		r.RecordEvent(ctx, ev)
	}
}
