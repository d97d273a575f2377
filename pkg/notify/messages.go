package notify

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Message builders used by the risk engine. Content mirrors what a human
// supervising the account needs at a glance: the figure that moved, the limit
// it is measured against, and the action being taken.

const maxPositionLines = 5

// PositionLine is the per-position fragment of a PNL update.
type PositionLine struct {
	Symbol string
	Pnl    float64
}

// PnlUpdate builds the periodic Info report: current PNL, distance to both
// daily limits, and the top open positions.
func PnlUpdate(pnl, stoploss, target float64, positions []PositionLine, at time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "P&L %s\n", money(pnl))
	if stoploss != 0 {
		fmt.Fprintf(&b, "Stoploss %s (%.1f%% away)\n", money(stoploss), (pnl-stoploss)/math.Abs(stoploss)*100)
	}
	if target != 0 {
		fmt.Fprintf(&b, "Target %s (%.1f%% away)\n", money(target), (target-pnl)/target*100)
	}
	if len(positions) > 0 {
		b.WriteString("Positions:\n")
		for i, pos := range positions {
			if i == maxPositionLines {
				fmt.Fprintf(&b, "  ... and %d more\n", len(positions)-maxPositionLines)
				break
			}
			fmt.Fprintf(&b, "  %s: %s\n", pos.Symbol, money(pos.Pnl))
		}
	}
	fmt.Fprintf(&b, "Time %s", at.Format("15:04:05"))
	return Message{Severity: SeverityInfo, Title: "PNL Update", Text: b.String()}
}

// HaltAlert announces a day-level halt: which rule fired, the PNL and the
// limit it breached, and whether the kill switch follows.
func HaltAlert(reason string, pnl, limit float64, killSwitch bool) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: P&L %s vs limit %s\n", reason, money(pnl), money(limit))
	b.WriteString("Trading halted for the day")
	if killSwitch {
		b.WriteString("; invoking broker kill switch")
	}
	return Message{Severity: SeverityAlert, Title: "TRADING HALTED", Text: b.String()}
}

// CloseAlert announces a per-position protective close.
func CloseAlert(symbol, reason string, pnlPercent float64) Message {
	return Message{
		Severity: SeverityAlert,
		Title:    "Position Close",
		Text:     fmt.Sprintf("%s at %.2f%% (%s): placing square-off order", symbol, pnlPercent, reason),
	}
}

// KillSwitchAlert confirms the broker-side kill switch is active.
func KillSwitchAlert() Message {
	return Message{
		Severity: SeverityAlert,
		Title:    "Kill Switch Activated",
		Text:     "Broker kill switch activated; trading disabled until next session",
	}
}

// Startup summarises the active configuration when monitoring begins.
func Startup(lines []string) Message {
	return Message{
		Severity: SeverityInfo,
		Title:    "Risk Monitor Started",
		Text:     strings.Join(lines, "\n"),
	}
}

// FetchError reports that account data could not be retrieved.
func FetchError(err error) Message {
	return Message{
		Severity: SeverityAlert,
		Title:    "Data Fetch Failed",
		Text:     fmt.Sprintf("could not fetch account data: %v; risk checks skipped this tick", err),
	}
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-%.2f", -v)
	}
	return fmt.Sprintf("%.2f", v)
}
