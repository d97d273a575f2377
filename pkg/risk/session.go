package risk

import "time"

// Phase is the trading-session state for the current calendar day.
type Phase int

const (
	PhaseBeforeMarket Phase = iota
	PhaseActive
	PhaseHaltedStoploss
	PhaseHaltedTarget
	PhaseAfterMarket
)

func (p Phase) String() string {
	switch p {
	case PhaseBeforeMarket:
		return "before_market"
	case PhaseActive:
		return "active"
	case PhaseHaltedStoploss:
		return "halted_stoploss"
	case PhaseHaltedTarget:
		return "halted_target"
	case PhaseAfterMarket:
		return "after_market"
	default:
		return "unknown"
	}
}

// Halted reports whether trading was halted by a day-level rule.
func (p Phase) Halted() bool {
	return p == PhaseHaltedStoploss || p == PhaseHaltedTarget
}

const dayLayout = "2006-01-02"

// Session tracks the per-day trading phase. Clock-driven transitions
// (day rollover, market open, market close) happen in Advance; rule-driven
// halts happen through Halt. Halted phases persist until market close or
// the next day's rollover.
type Session struct {
	cfg   *Config
	phase Phase
	day   string
}

func NewSession(cfg *Config) *Session {
	return &Session{cfg: cfg}
}

func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Day() string  { return s.day }

// Advance applies clock transitions for the given instant. It returns true
// exactly when a new trading day becomes Active, which is the caller's cue
// to reset all per-day rule state.
func (s *Session) Advance(now time.Time) (started bool) {
	now = now.In(s.cfg.loc)
	if day := now.Format(dayLayout); day != s.day {
		s.day = day
		s.phase = PhaseBeforeMarket
	}
	if s.phase == PhaseAfterMarket {
		return false
	}
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		s.phase = PhaseAfterMarket
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if minute >= s.cfg.endMin {
		s.phase = PhaseAfterMarket
		return false
	}
	if s.phase == PhaseBeforeMarket && minute >= s.cfg.startMin {
		s.phase = PhaseActive
		return true
	}
	return false
}

// Halt moves an Active session into the halted phase matching the reason.
// Calls outside Active are ignored.
func (s *Session) Halt(reason HaltReason) {
	if s.phase != PhaseActive {
		return
	}
	if reason == HaltDailyTarget {
		s.phase = PhaseHaltedTarget
		return
	}
	s.phase = PhaseHaltedStoploss
}

// Restore reinstates a previously saved phase, used when the process
// restarts mid-day. It is ignored if the saved day is not the given day.
func (s *Session) Restore(day string, phase Phase) {
	if day == "" {
		return
	}
	s.day = day
	s.phase = phase
}
