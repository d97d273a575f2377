package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch/pkg/broker/sim"
)

// signallingBroker cancels the run context the moment a close is dispatched,
// as if the shutdown signal landed mid-call.
type signallingBroker struct {
	*sim.Provider
	stop context.CancelFunc
}

func (b *signallingBroker) ClosePosition(ctx context.Context, id string) error {
	b.stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Provider.ClosePosition(ctx, id)
}

func TestMonitorShutdownLetsDispatchedCloseFinish(t *testing.T) {
	cfg := engineConfig(t)
	clk := &fakeClock{now: wed(10, 0)}
	inner := sim.New().WithClock(clk.Now)
	require.NoError(t, inner.OpenPosition("p1", "INFY", 10, 100))
	require.NoError(t, inner.SetMarkPrice("p1", 106))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	provider := &signallingBroker{Provider: inner, stop: stop}

	notifier := &captureNotifier{}
	recorder := &captureRecorder{}
	engine := NewEngine(cfg, provider, notifier, WithClock(clk.Now), WithRecorder(recorder))
	monitor := NewMonitor(cfg, engine, notifier)

	require.NoError(t, monitor.Run(ctx))

	assert.Equal(t, 1, recorder.count("close_position"), "a close already dispatched when the signal arrives must complete")
	positions, err := inner.FetchPositionSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "the position was squared off, not abandoned")
}

func TestMonitorAnnouncesConfigurationOnStart(t *testing.T) {
	cfg := engineConfig(t)
	clk := &fakeClock{now: wed(8, 0)} // before market open
	provider := sim.New().WithClock(clk.Now)
	notifier := &captureNotifier{}
	engine := NewEngine(cfg, provider, notifier, WithClock(clk.Now))
	monitor := NewMonitor(cfg, engine, notifier)

	ctx, stop := context.WithCancel(context.Background())
	stop()
	require.NoError(t, monitor.Run(ctx))

	require.Len(t, notifier.msgs, 1)
	msg := notifier.msgs[0]
	assert.Equal(t, "Risk Monitor Started", msg.Title)
	assert.Contains(t, msg.Text, "Daily stoploss: -5000.00")
	assert.Contains(t, msg.Text, "Market hours: 09:15-15:30")
	assert.Contains(t, msg.Text, "Trailing stop: arm at 1000.00, trail 10.0%")
	assert.Contains(t, msg.Text, "Kill switch: enabled")
}
