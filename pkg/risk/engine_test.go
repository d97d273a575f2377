package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch/pkg/broker/sim"
	"riskwatch/pkg/notify"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time            { return c.now }
func (c *fakeClock) Advance(d time.Duration)   { c.now = c.now.Add(d) }
func (c *fakeClock) Set(t time.Time)           { c.now = t }

type captureNotifier struct {
	msgs []notify.Message
	err  error
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) bySeverity(sev notify.Severity) []notify.Message {
	var out []notify.Message
	for _, m := range n.msgs {
		if m.Severity == sev {
			out = append(out, m)
		}
	}
	return out
}

type captureRecorder struct{ events []Event }

func (r *captureRecorder) RecordEvent(_ context.Context, ev Event) {
	r.events = append(r.events, ev)
}

func (r *captureRecorder) count(kind string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *captureRecorder) kinds() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func engineConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		DailyStoploss:           -5000,
		DailyTarget:             10000,
		MarketStart:             "09:15",
		MarketEnd:               "15:30",
		Timezone:                "UTC",
		KillSwitchEnabled:       true,
		PositionTargetEnabled:   true,
		PositionTargetPercent:   5,
		PositionStoplossEnabled: true,
		PositionStoplossPercent: 3,
		TrailingEnabled:         true,
		TrailingActivateProfit:  1000,
		TrailingTrailPercent:    10,
	}
	cfg.applyDefaults()
	require.NoError(t, cfg.parseDurations())
	require.NoError(t, cfg.Validate())
	return cfg
}

type engineFixture struct {
	engine   *Engine
	broker   *sim.Provider
	notifier *captureNotifier
	recorder *captureRecorder
	clock    *fakeClock
}

func newEngineFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()
	cfg := engineConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	clk := &fakeClock{now: wed(10, 0)}
	provider := sim.New().WithClock(clk.Now)
	notifier := &captureNotifier{}
	recorder := &captureRecorder{}
	engine := NewEngine(cfg, provider, notifier,
		WithClock(clk.Now),
		WithRecorder(recorder),
	)
	return &engineFixture{engine: engine, broker: provider, notifier: notifier, recorder: recorder, clock: clk}
}

// tick advances the clock by one interval and runs the engine once.
func (f *engineFixture) tick(t *testing.T) {
	t.Helper()
	f.clock.Advance(30 * time.Second)
	f.engine.Tick(context.Background())
}

func TestEngineDailyStoplossHaltsExactlyOnce(t *testing.T) {
	f := newEngineFixture(t, nil)

	for _, pnl := range []float64{-4000, -5200, -6000} {
		f.broker.SetRealizedPnl(pnl)
		f.tick(t)
	}

	assert.Equal(t, PhaseHaltedStoploss, f.engine.Phase())
	assert.Equal(t, 1, f.recorder.count("halt_day"), "halt must fire only on the breaching tick")
	assert.Equal(t, 1, f.recorder.count("kill_switch"))
	assert.True(t, f.broker.KillSwitchActive())
}

func TestEngineDailyTargetHaltsWithoutKillSwitch(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.broker.SetRealizedPnl(11000)
	f.tick(t)

	assert.Equal(t, PhaseHaltedTarget, f.engine.Phase())
	assert.Equal(t, 1, f.recorder.count("halt_day"))
	assert.Equal(t, 0, f.recorder.count("kill_switch"), "target halt is not stoploss-class")
	assert.False(t, f.broker.KillSwitchActive())
}

func TestEngineTrailingBreachIsStoplossClass(t *testing.T) {
	f := newEngineFixture(t, nil)

	for _, pnl := range []float64{500, 1200, 2000, 1750} {
		f.broker.SetRealizedPnl(pnl)
		f.tick(t)
	}

	assert.Equal(t, PhaseHaltedStoploss, f.engine.Phase())
	require.Equal(t, 1, f.recorder.count("halt_day"))
	for _, ev := range f.recorder.events {
		if ev.Kind == "halt_day" {
			assert.Equal(t, string(HaltTrailingStop), ev.Reason)
		}
	}
	assert.True(t, f.broker.KillSwitchActive(), "trailing breach triggers the kill switch")
}

func TestEngineHaltSquaresOffAndCancels(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.broker.OpenPosition("p1", "RELIANCE", 10, 100))
	require.NoError(t, f.broker.SetMarkPrice("p1", 40))
	f.broker.SetRealizedPnl(-4500) // total = -4500 - 600 = -5100
	f.broker.AddPendingOrders(2)

	f.tick(t)

	assert.Equal(t, PhaseHaltedStoploss, f.engine.Phase())
	positions, err := f.broker.FetchPositionSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "open positions are squared off at halt")
	assert.Equal(t, []string{"halt_day", "cancel_orders", "close_position", "kill_switch"}, f.recorder.kinds(),
		"kill switch must come after square-off and cancellations")
}

func TestEnginePositionTargetCloseOnce(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.broker.OpenPosition("p1", "INFY", 10, 100))
	require.NoError(t, f.broker.SetMarkPrice("p1", 106)) // +6% >= 5% target

	f.tick(t)

	assert.Equal(t, PhaseActive, f.engine.Phase(), "a position close does not halt the day")
	assert.Equal(t, 1, f.recorder.count("close_position"))

	f.tick(t)
	f.tick(t)
	assert.Equal(t, 1, f.recorder.count("close_position"), "no duplicate close once confirmed")
}

func TestEngineCloseFailureRetriesNextTick(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.broker.OpenPosition("p1", "INFY", 10, 100))
	require.NoError(t, f.broker.SetMarkPrice("p1", 106))

	f.broker.CloseErr = errors.New("order rejected")
	f.tick(t)
	assert.Equal(t, 0, f.recorder.count("close_position"))

	f.broker.CloseErr = nil
	f.tick(t)
	assert.Equal(t, 1, f.recorder.count("close_position"), "pending close retried on the next tick")

	positions, err := f.broker.FetchPositionSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestEngineKillSwitchFailureRetriesWhileHalted(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.broker.KillSwitchErr = errors.New("503 from broker")
	f.broker.SetRealizedPnl(-6000)

	f.tick(t)
	require.Equal(t, PhaseHaltedStoploss, f.engine.Phase())
	assert.False(t, f.broker.KillSwitchActive())

	f.tick(t)
	assert.False(t, f.broker.KillSwitchActive(), "still failing")

	f.broker.KillSwitchErr = nil
	f.tick(t)
	assert.True(t, f.broker.KillSwitchActive())
	assert.Equal(t, 1, f.recorder.count("kill_switch"))

	f.tick(t)
	assert.Equal(t, 1, f.recorder.count("kill_switch"), "confirmed kill switch never re-fires")
}

func TestEngineFetchFailureSkipsTick(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.broker.SetRealizedPnl(1500)
	f.tick(t) // arms the trailing stop

	f.broker.FetchErr = errors.New("connection refused")
	f.broker.SetRealizedPnl(-6000)
	f.tick(t)

	assert.Equal(t, PhaseActive, f.engine.Phase(), "a failed fetch must not halt or mutate state")
	assert.Equal(t, 0, f.recorder.count("halt_day"))

	f.broker.FetchErr = nil
	f.tick(t)
	assert.Equal(t, PhaseHaltedStoploss, f.engine.Phase(), "next successful tick evaluates normally")
}

func TestEngineFetchErrorAlertRateLimited(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.broker.FetchErr = errors.New("timeout")

	f.tick(t)
	f.tick(t)
	f.tick(t)
	assert.Len(t, f.notifier.bySeverity(notify.SeverityAlert), 1, "repeated fetch failures alert once per cooldown")

	f.clock.Advance(11 * time.Minute)
	f.engine.Tick(context.Background())
	assert.Len(t, f.notifier.bySeverity(notify.SeverityAlert), 2)
}

func TestEnginePnlUpdateInterval(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.PnlUpdatesEnabled = true
	})
	f.broker.SetRealizedPnl(500)

	f.tick(t)
	assert.Len(t, f.notifier.bySeverity(notify.SeverityInfo), 1, "first active tick reports")

	f.tick(t)
	assert.Len(t, f.notifier.bySeverity(notify.SeverityInfo), 1, "within the interval no report")

	f.clock.Advance(5 * time.Minute)
	f.engine.Tick(context.Background())
	assert.Len(t, f.notifier.bySeverity(notify.SeverityInfo), 2)
}

func TestEngineAlertsOnlySuppressesUpdates(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.PnlUpdatesEnabled = true
		cfg.AlertsOnly = true
	})
	f.broker.SetRealizedPnl(500)

	f.tick(t)
	f.clock.Advance(time.Hour)
	f.engine.Tick(context.Background())
	assert.Empty(t, f.notifier.bySeverity(notify.SeverityInfo), "alerts-only mode drops periodic updates")
}

func TestEngineOutsideMarketHoursDoesNothing(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.clock.Set(wed(8, 0))
	f.broker.SetRealizedPnl(-6000)

	f.engine.Tick(context.Background())
	assert.Equal(t, PhaseBeforeMarket, f.engine.Phase())
	assert.Empty(t, f.recorder.events, "no rule evaluation before market open")
}

func TestEngineDayRolloverResetsEverything(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.broker.SetRealizedPnl(-6000)
	f.tick(t)
	require.Equal(t, PhaseHaltedStoploss, f.engine.Phase())

	f.clock.Set(time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC))
	f.broker.SetRealizedPnl(0)
	f.engine.Tick(context.Background())
	assert.Equal(t, PhaseActive, f.engine.Phase(), "next day restarts trading")

	// Rules are live again: a fresh breach halts a second time.
	f.broker.SetRealizedPnl(-5500)
	f.tick(t)
	assert.Equal(t, PhaseHaltedStoploss, f.engine.Phase())
	assert.Equal(t, 2, f.recorder.count("halt_day"))
	assert.Equal(t, 2, f.recorder.count("kill_switch"))
}

func TestEngineReplayProducesNoNewActions(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.broker.SetRealizedPnl(-5200)
	f.tick(t)
	seen := len(f.recorder.events)

	f.tick(t)
	f.tick(t)
	assert.Len(t, f.recorder.events, seen, "identical halted snapshots add no actions")
}
