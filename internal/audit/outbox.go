package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clicr/pkg/platform/tx"
)

// OutboxSink writes audit events to a relational outbox table; a Worker later
// drains them into the stream. When the context carries a transaction the
// insert joins it, so an event commits or rolls back with its mutation.
type OutboxSink struct {
	db *sql.DB
}

// OutboxSchema is applied by development bootstrap and container tests.
const OutboxSchema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
    id           UUID PRIMARY KEY,
    payload      JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    published_at TIMESTAMPTZ
);`

// NewOutboxSink constructs an outbox-backed sink.
func NewOutboxSink(db *sql.DB) *OutboxSink {
	return &OutboxSink{db: db}
}

// Emit appends the event to the outbox.
func (s *OutboxSink) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	const stmt = `INSERT INTO audit_outbox (id, payload, created_at) VALUES ($1, $2, $3)`
	if t, ok := tx.From(ctx); ok {
		_, err = t.ExecContext(ctx, stmt, uuid.New(), payload, event.Timestamp)
	} else {
		_, err = s.db.ExecContext(ctx, stmt, uuid.New(), payload, event.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("append audit outbox: %w", err)
	}
	return nil
}

// Worker drains the outbox into a downstream emitter in batches.
type Worker struct {
	db       *sql.DB
	out      Emitter
	logger   *slog.Logger
	interval time.Duration
}

// NewWorker constructs a Worker polling at the given interval.
func NewWorker(db *sql.DB, out Emitter, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{db: db, out: out, logger: logger, interval: interval}
}

// Run drains until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, payload FROM audit_outbox WHERE published_at IS NULL ORDER BY created_at LIMIT 100`)
	if err != nil {
		return fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id      uuid.UUID
		payload []byte
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range batch {
		var event Event
		if err := json.Unmarshal(p.payload, &event); err != nil {
			w.logger.WarnContext(ctx, "dropping undecodable outbox row", "id", p.id, "error", err)
		} else if err := w.out.Emit(ctx, event); err != nil {
			return fmt.Errorf("publish outbox row: %w", err)
		}
		if _, err := w.db.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = $2 WHERE id = $1`, p.id, time.Now()); err != nil {
			return fmt.Errorf("mark outbox row: %w", err)
		}
	}
	return nil
}
