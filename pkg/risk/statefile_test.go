package risk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch/pkg/broker/sim"
	"riskwatch/pkg/notify"
)

func TestStateFileRoundTrip(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "nested", "day_state.bin"))

	missing, err := f.Load()
	require.NoError(t, err)
	assert.Nil(t, missing, "no snapshot yet is not an error")

	saved := &DayState{
		Day:           "2025-06-11",
		Phase:         int(PhaseHaltedStoploss),
		TrailingArmed: true,
		TrailingPeak:  2000,
		Rules: map[string]RuleState{
			"p1": {NotifiedTarget: true, CloseRequested: true},
		},
		PendingKill: true,
	}
	require.NoError(t, f.Save(saved))

	loaded, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestEngineResumesHaltedDayAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "day_state.bin")
	clk := &fakeClock{now: wed(10, 0)}

	provider := sim.New().WithClock(clk.Now)
	provider.SetRealizedPnl(-6000)
	first := NewEngine(engineConfig(t), provider, &captureNotifier{},
		WithClock(clk.Now), WithStateFile(NewStateFile(path)))
	first.Tick(context.Background())
	require.Equal(t, PhaseHaltedStoploss, first.Phase())

	// Process restart: a fresh engine against the same file and clock.
	recorder := &captureRecorder{}
	second := NewEngine(engineConfig(t), provider, &captureNotifier{},
		WithClock(clk.Now), WithStateFile(NewStateFile(path)), WithRecorder(recorder))
	assert.Equal(t, PhaseHaltedStoploss, second.Phase(), "restart must not forget the halt")

	clk.Advance(30 * time.Second)
	second.Tick(context.Background())
	assert.Equal(t, 0, recorder.count("halt_day"), "resumed halt does not re-fire")
}

func TestEngineIgnoresStaleStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "day_state.bin")
	require.NoError(t, NewStateFile(path).Save(&DayState{
		Day:   "2025-06-10",
		Phase: int(PhaseHaltedTarget),
	}))

	clk := &fakeClock{now: wed(10, 0)}
	engine := NewEngine(engineConfig(t), sim.New().WithClock(clk.Now), &captureNotifier{},
		WithClock(clk.Now), WithStateFile(NewStateFile(path)))
	engine.Tick(context.Background())
	assert.Equal(t, PhaseActive, engine.Phase(), "yesterday's halt does not carry over")
}

var _ notify.Notifier = (*captureNotifier)(nil)
