package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/pkg/broker"
	"riskwatch/pkg/notify"
)

// Engine runs one poll-evaluate-act cycle per tick. All mutable state is
// owned by the single tick flow; no locking is needed. A failed snapshot
// fetch skips the tick entirely so a dead feed can never read as flat PNL.
type Engine struct {
	cfg        *Config
	provider   broker.Provider
	notifier   notify.Notifier
	recorder   EventRecorder
	session    *Session
	trailing   *TrailingStopTracker
	positions  *PositionRuleEvaluator
	dispatcher *Dispatcher
	state      *StateFile
	clock      func() time.Time

	lastPnlUpdate  time.Time
	lastFetchAlert time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithRecorder attaches an audit event recorder.
func WithRecorder(r EventRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithStateFile enables day-state persistence across restarts.
func WithStateFile(f *StateFile) EngineOption {
	return func(e *Engine) { e.state = f }
}

func NewEngine(cfg *Config, provider broker.Provider, notifier notify.Notifier, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		provider: provider,
		notifier: notifier,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = NewSession(cfg)
	e.trailing = NewTrailingStopTracker(cfg)
	e.positions = NewPositionRuleEvaluator(cfg)
	e.dispatcher = NewDispatcher(cfg, provider, notifier, e.recorder, e.clock)
	e.restore()
	return e
}

// restore resumes a previously saved day so a mid-day restart does not
// forget a halt or an armed trailing stop. Stale snapshots from an earlier
// day are ignored; Advance starts the new day normally.
func (e *Engine) restore() {
	if e.state == nil {
		return
	}
	st, err := e.state.Load()
	if err != nil {
		logx.Errorf("engine: day state not restored: %v", err)
		return
	}
	if st == nil {
		return
	}
	today := e.clock().In(e.cfg.loc).Format(dayLayout)
	if st.Day != today {
		return
	}
	e.session.Restore(st.Day, Phase(st.Phase))
	e.trailing.Restore(st.TrailingArmed, st.TrailingPeak)
	e.positions.RestoreSnapshot(st.Rules)
	e.dispatcher.RestoreMarkers(st.PendingCancel, st.PendingKill, st.KillConfirmed)
	logx.Infof("engine: resumed day %s in phase %s", st.Day, Phase(st.Phase))
}

// Tick runs one evaluation cycle. All failure modes are absorbed per the
// retry rules; the caller only schedules.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clock()
	if e.session.Advance(now) {
		e.startDay(ctx)
	}

	phase := e.session.Phase()
	if phase != PhaseActive {
		if phase.Halted() && e.dispatcher.Pending() {
			e.applyConfirmed(e.dispatcher.Dispatch(ctx, nil))
			e.persist(ctx)
		}
		return
	}

	account, positions, err := e.fetch(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("engine: snapshot fetch failed, tick skipped: %v", err)
		e.alertFetchError(ctx, now, err)
		return
	}
	e.dispatcher.PruneVanished(positions)

	var actions []Action
	if reason, halted := e.evaluateDay(account.TotalPnl); halted {
		e.session.Halt(reason)
		logx.WithContext(ctx).Infof("engine: day halted, reason=%s pnl=%.2f", reason, account.TotalPnl)
		actions = e.haltActions(reason, account, positions)
	} else {
		for _, intent := range e.positions.Evaluate(positions) {
			actions = append(actions, Action{Kind: ActionClosePosition, Position: intent.Position, CloseReason: intent.Reason})
		}
		if e.shouldSendUpdate(now) {
			e.lastPnlUpdate = now
			actions = append(actions, Action{Kind: ActionNotify, Message: e.pnlUpdate(account, positions, now)})
		}
	}

	e.applyConfirmed(e.dispatcher.Dispatch(ctx, actions))
	e.persist(ctx)
}

func (e *Engine) startDay(ctx context.Context) {
	e.trailing.Reset()
	e.positions.Reset()
	e.dispatcher.Reset()
	e.lastPnlUpdate = time.Time{}
	e.lastFetchAlert = time.Time{}
	logx.WithContext(ctx).Infof("engine: trading day %s active", e.session.Day())
	e.persist(ctx)
}

// evaluateDay applies the day-level rules in fixed order: stoploss, target,
// trailing stop. The trailing tracker observes PNL only when the first two
// do not fire; a halted day resets it at rollover anyway.
func (e *Engine) evaluateDay(totalPnl float64) (HaltReason, bool) {
	if totalPnl <= e.cfg.DailyStoploss {
		return HaltDailyStoploss, true
	}
	if totalPnl >= e.cfg.DailyTarget {
		return HaltDailyTarget, true
	}
	if e.trailing.Observe(totalPnl) {
		return HaltTrailingStop, true
	}
	return "", false
}

// haltActions builds the one-shot halt sequence: alert, cancel working
// orders, square off every open position, then the kill switch for
// stoploss-class reasons.
func (e *Engine) haltActions(reason HaltReason, account *broker.AccountSnapshot, positions []broker.PositionSnapshot) []Action {
	kill := e.cfg.KillSwitchEnabled && reason.StoplossClass()
	actions := []Action{
		{Kind: ActionHaltDay, Reason: reason, Pnl: account.TotalPnl, Limit: e.limitFor(reason), KillSwitch: kill},
		{Kind: ActionCancelOrders},
	}
	for _, p := range positions {
		actions = append(actions, Action{Kind: ActionClosePosition, Position: p, CloseReason: CloseHalt})
	}
	if kill {
		actions = append(actions, Action{Kind: ActionInvokeKillSwitch})
	}
	return actions
}

func (e *Engine) limitFor(reason HaltReason) float64 {
	switch reason {
	case HaltDailyTarget:
		return e.cfg.DailyTarget
	case HaltTrailingStop:
		return e.trailing.TriggerPnl()
	default:
		return e.cfg.DailyStoploss
	}
}

func (e *Engine) fetch(ctx context.Context) (*broker.AccountSnapshot, []broker.PositionSnapshot, error) {
	account, err := e.provider.FetchAccountSnapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("account snapshot: %w", err)
	}
	positions, err := e.provider.FetchPositionSnapshots(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("position snapshots: %w", err)
	}
	return account, positions, nil
}

func (e *Engine) applyConfirmed(closedIDs []string) {
	for _, id := range closedIDs {
		e.positions.MarkCloseRequested(id)
	}
}

func (e *Engine) shouldSendUpdate(now time.Time) bool {
	if !e.cfg.PnlUpdatesEnabled || e.cfg.AlertsOnly {
		return false
	}
	return e.lastPnlUpdate.IsZero() || now.Sub(e.lastPnlUpdate) >= e.cfg.PnlUpdateInterval
}

func (e *Engine) pnlUpdate(account *broker.AccountSnapshot, positions []broker.PositionSnapshot, now time.Time) notify.Message {
	lines := make([]notify.PositionLine, 0, len(positions))
	for _, p := range positions {
		lines = append(lines, notify.PositionLine{Symbol: p.Symbol, Pnl: p.UnrealizedPnl})
	}
	return notify.PnlUpdate(account.TotalPnl, e.cfg.DailyStoploss, e.cfg.DailyTarget, lines, now)
}

// alertFetchError sends at most one alert per cooldown so a dead feed does
// not flood the channel.
func (e *Engine) alertFetchError(ctx context.Context, now time.Time, err error) {
	if e.recorder != nil {
		e.recorder.RecordEvent(ctx, Event{Time: now, Kind: "fetch_error", Detail: err.Error()})
	}
	if !e.lastFetchAlert.IsZero() && now.Sub(e.lastFetchAlert) < e.cfg.ErrorAlertCooldown {
		return
	}
	e.lastFetchAlert = now
	if sendErr := e.notifier.Send(ctx, notify.FetchError(err)); sendErr != nil {
		logx.WithContext(ctx).Errorf("engine: fetch error alert failed: %v", sendErr)
	}
}

func (e *Engine) persist(ctx context.Context) {
	if e.state == nil {
		return
	}
	cancel, kill, confirmed := e.dispatcher.Markers()
	st := &DayState{
		Day:           e.session.Day(),
		Phase:         int(e.session.Phase()),
		TrailingArmed: e.trailing.Armed(),
		TrailingPeak:  e.trailing.PeakPnl(),
		Rules:         e.positions.Snapshot(),
		PendingCancel: cancel,
		PendingKill:   kill,
		KillConfirmed: confirmed,
	}
	if err := e.state.Save(st); err != nil {
		logx.WithContext(ctx).Errorf("engine: day state not saved: %v", err)
	}
}

// Phase exposes the current session phase for status reporting.
func (e *Engine) Phase() Phase { return e.session.Phase() }
