package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPnlUpdateContents(t *testing.T) {
	at := time.Date(2025, 6, 11, 11, 30, 0, 0, time.UTC)
	msg := PnlUpdate(1500, -5000, 10000, []PositionLine{
		{Symbol: "RELIANCE", Pnl: 500},
		{Symbol: "TCS", Pnl: -200},
	}, at)

	assert.Equal(t, SeverityInfo, msg.Severity)
	assert.Contains(t, msg.Text, "1500.00")
	assert.Contains(t, msg.Text, "RELIANCE")
	assert.Contains(t, msg.Text, "11:30:00")
}

func TestPnlUpdateTruncatesPositionList(t *testing.T) {
	positions := make([]PositionLine, 8)
	for i := range positions {
		positions[i] = PositionLine{Symbol: "SYM", Pnl: 1}
	}
	msg := PnlUpdate(0, -1, 1, positions, time.Now())
	assert.Contains(t, msg.Text, "and 3 more")
}

func TestHaltAlertMentionsKillSwitch(t *testing.T) {
	with := HaltAlert("daily_stoploss", -5200, -5000, true)
	assert.Equal(t, SeverityAlert, with.Severity)
	assert.Contains(t, with.Text, "kill switch")

	without := HaltAlert("daily_target", 11000, 10000, false)
	assert.NotContains(t, without.Text, "kill switch")
}

func TestCloseAlert(t *testing.T) {
	msg := CloseAlert("INFY", "target", 6.2)
	assert.Equal(t, SeverityAlert, msg.Severity)
	assert.Contains(t, msg.Text, "INFY")
	assert.Contains(t, msg.Text, "6.20%")
}

func TestFetchErrorSeverity(t *testing.T) {
	msg := FetchError(errors.New("connection refused"))
	assert.Equal(t, SeverityAlert, msg.Severity)
	assert.Contains(t, msg.Text, "connection refused")
}
