package risk

import (
	"context"
	"sort"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/pkg/broker"
	"riskwatch/pkg/notify"
)

type pendingClose struct {
	position broker.PositionSnapshot
	reason   CloseReason
}

// Dispatcher executes decided actions against the broker and notifier.
// ClosePosition, CancelOrders and InvokeKillSwitch calls that fail stay
// pending and are re-attempted on the next tick, at most once per tick,
// until they succeed or the day ends. Notifications are best effort and
// never retried.
type Dispatcher struct {
	provider broker.Provider
	notifier notify.Notifier
	recorder EventRecorder
	timeout  time.Duration
	clock    func() time.Time

	pendingCloses map[string]pendingClose
	pendingCancel bool
	pendingKill   bool
	killConfirmed bool
}

func NewDispatcher(cfg *Config, provider broker.Provider, notifier notify.Notifier, recorder EventRecorder, clock func() time.Time) *Dispatcher {
	return &Dispatcher{
		provider:      provider,
		notifier:      notifier,
		recorder:      recorder,
		timeout:       cfg.ActionTimeout,
		clock:         clock,
		pendingCloses: make(map[string]pendingClose),
	}
}

// Dispatch enqueues the new actions and then runs every pending one. It
// returns the ids of positions whose close request was confirmed by the
// broker this tick. Calling with no actions retries leftover pendings.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []Action) (closedIDs []string) {
	for _, a := range actions {
		switch a.Kind {
		case ActionNotify:
			d.send(ctx, a.Message)
		case ActionHaltDay:
			d.record(ctx, Event{Kind: "halt_day", Reason: string(a.Reason), Pnl: a.Pnl})
			d.send(ctx, notify.HaltAlert(string(a.Reason), a.Pnl, a.Limit, a.KillSwitch))
		case ActionCancelOrders:
			d.pendingCancel = true
		case ActionClosePosition:
			if _, ok := d.pendingCloses[a.Position.ID]; !ok {
				d.pendingCloses[a.Position.ID] = pendingClose{position: a.Position, reason: a.CloseReason}
			}
		case ActionInvokeKillSwitch:
			if !d.killConfirmed {
				d.pendingKill = true
			}
		}
	}
	return d.runPending(ctx)
}

func (d *Dispatcher) runPending(ctx context.Context) (closedIDs []string) {
	if d.pendingCancel {
		if err := d.call(ctx, d.provider.CancelPendingOrders); err != nil {
			logx.WithContext(ctx).Errorf("dispatch: cancel pending orders failed, will retry: %v", err)
		} else {
			d.pendingCancel = false
			d.record(ctx, Event{Kind: "cancel_orders"})
		}
	}

	ids := make([]string, 0, len(d.pendingCloses))
	for id := range d.pendingCloses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pc := d.pendingCloses[id]
		err := d.call(ctx, func(cctx context.Context) error {
			return d.provider.ClosePosition(cctx, id)
		})
		if err != nil {
			logx.WithContext(ctx).Errorf("dispatch: close %s (%s) failed, will retry: %v", pc.position.Symbol, id, err)
			continue
		}
		delete(d.pendingCloses, id)
		closedIDs = append(closedIDs, id)
		d.record(ctx, Event{Kind: "close_position", Symbol: pc.position.Symbol, Reason: string(pc.reason), Pnl: pc.position.UnrealizedPnl})
		d.send(ctx, notify.CloseAlert(pc.position.Symbol, string(pc.reason), pc.position.PnlPercent))
	}

	// The kill switch goes last: square-off and cancellations must land
	// before the account is locked.
	if d.pendingKill && !d.pendingCancel && len(d.pendingCloses) == 0 {
		if err := d.call(ctx, d.provider.InvokeKillSwitch); err != nil {
			logx.WithContext(ctx).Errorf("dispatch: kill switch failed, will retry: %v", err)
		} else {
			d.pendingKill = false
			d.killConfirmed = true
			d.record(ctx, Event{Kind: "kill_switch"})
			d.send(ctx, notify.KillSwitchAlert())
		}
	}
	return closedIDs
}

// Pending reports whether any action is still awaiting a successful call.
func (d *Dispatcher) Pending() bool {
	return d.pendingCancel || d.pendingKill || len(d.pendingCloses) > 0
}

// PruneVanished drops pending closes for positions no longer in the
// snapshot; the broker already flattened them.
func (d *Dispatcher) PruneVanished(positions []broker.PositionSnapshot) {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		seen[p.ID] = struct{}{}
	}
	for id := range d.pendingCloses {
		if _, ok := seen[id]; !ok {
			delete(d.pendingCloses, id)
		}
	}
}

// Markers returns the day-level pending and confirmed flags for persistence.
func (d *Dispatcher) Markers() (pendingCancel, pendingKill, killConfirmed bool) {
	return d.pendingCancel, d.pendingKill, d.killConfirmed
}

// RestoreMarkers reinstates persisted day-level flags after a restart.
func (d *Dispatcher) RestoreMarkers(pendingCancel, pendingKill, killConfirmed bool) {
	d.pendingCancel = pendingCancel
	d.pendingKill = pendingKill
	d.killConfirmed = killConfirmed
}

// Reset clears all pending and confirmed markers at day rollover.
func (d *Dispatcher) Reset() {
	d.pendingCloses = make(map[string]pendingClose)
	d.pendingCancel = false
	d.pendingKill = false
	d.killConfirmed = false
}

func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return fn(cctx)
}

func (d *Dispatcher) send(ctx context.Context, msg notify.Message) {
	err := d.call(ctx, func(cctx context.Context) error {
		return d.notifier.Send(cctx, msg)
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("dispatch: notification %q failed: %v", msg.Title, err)
		d.record(ctx, Event{Kind: "notify_error", Detail: err.Error()})
	}
}

func (d *Dispatcher) record(ctx context.Context, ev Event) {
	if d.recorder == nil {
		return
	}
	ev.Time = d.clock()
	d.recorder.RecordEvent(ctx, ev)
}
