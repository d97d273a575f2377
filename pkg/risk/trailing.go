package risk

// TrailingStopTracker maintains peak-profit state for the trailing stoploss.
// It arms once total PNL reaches the activation profit and from then on
// ratchets the peak upward; the trigger level follows the peak and never
// falls. A transient dip below the trigger does not un-arm the tracker, it
// halts the day. Reset happens only on day rollover.
type TrailingStopTracker struct {
	enabled        bool
	activateProfit float64
	trailPercent   float64

	armed   bool
	peakPnl float64
}

func NewTrailingStopTracker(cfg *Config) *TrailingStopTracker {
	return &TrailingStopTracker{
		enabled:        cfg.TrailingEnabled,
		activateProfit: cfg.TrailingActivateProfit,
		trailPercent:   cfg.TrailingTrailPercent,
	}
}

// Observe feeds one total-PNL reading and reports whether the trailing stop
// is breached. The arming tick itself never breaches.
func (t *TrailingStopTracker) Observe(totalPnl float64) bool {
	if !t.enabled {
		return false
	}
	if !t.armed {
		if totalPnl >= t.activateProfit {
			t.armed = true
			t.peakPnl = totalPnl
		}
		return false
	}
	if totalPnl > t.peakPnl {
		t.peakPnl = totalPnl
	}
	return totalPnl <= t.TriggerPnl()
}

// TriggerPnl returns the current trailing-stop level. Meaningless until armed.
func (t *TrailingStopTracker) TriggerPnl() float64 {
	return t.peakPnl * (1 - t.trailPercent/100)
}

func (t *TrailingStopTracker) Armed() bool      { return t.armed }
func (t *TrailingStopTracker) PeakPnl() float64 { return t.peakPnl }

func (t *TrailingStopTracker) Reset() {
	t.armed = false
	t.peakPnl = 0
}

// Restore reinstates saved arming state after a mid-day restart.
func (t *TrailingStopTracker) Restore(armed bool, peakPnl float64) {
	t.armed = armed
	t.peakPnl = peakPnl
}
