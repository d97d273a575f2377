package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"riskwatch/pkg/risk"
)

// EventStore persists risk events to Postgres for later analysis. It is a
// best-effort sink: insert failures are logged and dropped so a database
// outage can never stall a tick.
type EventStore struct {
	conn sqlx.SqlConn
}

// Open connects to Postgres via the pgx stdlib driver and returns an event
// store backed by it.
func Open(dsn string, maxOpen, maxIdle int) (*EventStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &EventStore{conn: sqlx.NewSqlConnFromDB(db)}, nil
}

// NewWithConn wraps an existing connection, for tests.
func NewWithConn(conn sqlx.SqlConn) *EventStore {
	return &EventStore{conn: conn}
}

const insertEvent = `INSERT INTO risk_events (occurred_at, kind, symbol, reason, pnl, detail)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *EventStore) RecordEvent(ctx context.Context, ev risk.Event) {
	if s == nil || s.conn == nil {
		return
	}
	_, err := s.conn.ExecCtx(ctx, insertEvent,
		ev.Time, ev.Kind, ev.Symbol, ev.Reason, ev.Pnl, ev.Detail)
	if err != nil {
		logx.WithContext(ctx).Errorf("store: insert risk event %s: %v", ev.Kind, err)
	}
}

// RecentEvents returns up to limit events for the given day, newest first.
// Backs the -status flag of the monitor binary.
func (s *EventStore) RecentEvents(ctx context.Context, day time.Time, limit int) ([]risk.Event, error) {
	const q = `SELECT occurred_at, kind, COALESCE(symbol,'') AS symbol, COALESCE(reason,'') AS reason, COALESCE(pnl,0) AS pnl, COALESCE(detail,'') AS detail
FROM risk_events
WHERE occurred_at >= $1 AND occurred_at < $2
ORDER BY occurred_at DESC
LIMIT $3`
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	type row struct {
		OccurredAt time.Time `db:"occurred_at"`
		Kind       string    `db:"kind"`
		Symbol     string    `db:"symbol"`
		Reason     string    `db:"reason"`
		Pnl        float64   `db:"pnl"`
		Detail     string    `db:"detail"`
	}
	var rows []row
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, start, start.AddDate(0, 0, 1), limit); err != nil {
		return nil, err
	}
	out := make([]risk.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, risk.Event{Time: r.OccurredAt, Kind: r.Kind, Symbol: r.Symbol, Reason: r.Reason, Pnl: r.Pnl, Detail: r.Detail})
	}
	return out, nil
}
