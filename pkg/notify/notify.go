package notify

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
)

// Severity classifies outgoing notifications. The risk engine decides the
// severity; transports may route or format on it.
type Severity string

const (
	// SeverityInfo marks routine updates (periodic PNL reports, startup).
	SeverityInfo Severity = "info"
	// SeverityAlert marks risk-control events (halts, closes, kill switch).
	SeverityAlert Severity = "alert"
)

// Message is a single outgoing notification.
type Message struct {
	Severity Severity
	Title    string
	Text     string
}

// Notifier delivers messages to an external channel. Delivery is best-effort
// from the caller's point of view: a send failure must never block or alter
// risk-control actions.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the process log. It is the default
// transport in dry-run setups and a safe fallback when no channel is
// configured.
type LogNotifier struct{}

// Send implements Notifier.
func (LogNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Severity == SeverityAlert {
		logx.WithContext(ctx).Errorf("[notify] %s: %s", msg.Title, msg.Text)
		return nil
	}
	logx.WithContext(ctx).Infof("[notify] %s: %s", msg.Title, msg.Text)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
