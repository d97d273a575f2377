package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/pkg/notify"
)

// Monitor drives the engine on a fixed interval. One tick runs to
// completion before the next timer fires; a slow tick defers the next one
// rather than overlapping it.
type Monitor struct {
	cfg      *Config
	engine   *Engine
	notifier notify.Notifier
}

func NewMonitor(cfg *Config, engine *Engine, notifier notify.Notifier) *Monitor {
	return &Monitor{cfg: cfg, engine: engine, notifier: notifier}
}

// Run announces startup, ticks immediately, then loops until the context is
// cancelled. Ticks run on a context detached from the shutdown signal so a
// broker call already dispatched when the signal arrives completes instead of
// being torn down mid-flight; the per-call action timeout still bounds it.
func (m *Monitor) Run(ctx context.Context) error {
	m.announce(ctx)

	tickCtx := context.WithoutCancel(ctx)
	m.engine.Tick(tickCtx)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logx.Info("monitor: shutdown requested, stopping")
			return nil
		case <-ticker.C:
			m.engine.Tick(tickCtx)
		}
	}
}

func (m *Monitor) announce(ctx context.Context) {
	lines := []string{
		fmt.Sprintf("Daily stoploss: %.2f", m.cfg.DailyStoploss),
		fmt.Sprintf("Daily target: %.2f", m.cfg.DailyTarget),
		fmt.Sprintf("Market hours: %s-%s", m.cfg.MarketStart, m.cfg.MarketEnd),
		fmt.Sprintf("Tick interval: %s", m.cfg.TickInterval),
	}
	if m.cfg.TrailingEnabled {
		lines = append(lines, fmt.Sprintf("Trailing stop: arm at %.2f, trail %.1f%%",
			m.cfg.TrailingActivateProfit, m.cfg.TrailingTrailPercent))
	}
	if m.cfg.KillSwitchEnabled {
		lines = append(lines, "Kill switch: enabled")
	}
	if err := m.notifier.Send(ctx, notify.Startup(lines)); err != nil {
		logx.WithContext(ctx).Errorf("monitor: startup notification failed: %v", err)
	}
}
