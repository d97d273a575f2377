package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"riskwatch/pkg/risk"
)

// Writer appends risk events to a per-day JSONL file for audit and
// post-mortem analysis. Write failures are logged and swallowed; losing an
// audit line must never block a risk-control action.
type Writer struct {
	dir   string
	nowFn func() time.Time
}

// NewWriter constructs an event journal rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// RecordEvent appends one event to the current day's journal file.
func (w *Writer) RecordEvent(ctx context.Context, ev risk.Event) {
	if ev.Time.IsZero() {
		ev.Time = w.nowFn()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logx.WithContext(ctx).Errorf("journal: marshal event: %v", err)
		return
	}
	name := "events_" + ev.Time.Format("20060102") + ".jsonl"
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logx.WithContext(ctx).Errorf("journal: open %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		logx.WithContext(ctx).Errorf("journal: write %s: %v", path, err)
	}
}
