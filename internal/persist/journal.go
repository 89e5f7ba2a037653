package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/store"
)

// Entry is one journaled action.
type Entry struct {
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	TaskID  string          `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RedactedValue replaces secrets in journaled payloads.
const RedactedValue = "[redacted]"

// Redactor is implemented by payloads that must not be journaled verbatim.
type Redactor interface {
	Redacted() any
}

// JournalSink stores journal entries.
type JournalSink interface {
	AppendEntries(ctx context.Context, entries []Entry) error
}

// Journal records every reduced action. Observe queues; Run writes batches.
type Journal struct {
	sink JournalSink
	opts options
	q    *queue[Entry]
}

// NewJournal creates a journal writing to sink. Register it with
// store.WithObserver or Store.AddObserver, then start Run.
func NewJournal(sink JournalSink, opts ...Option) *Journal {
	return &Journal{
		sink: sink,
		opts: newOptions(opts),
		q:    newQueue[Entry](),
	}
}

// RunID identifies this process's entries.
func (j *Journal) RunID() string {
	return j.opts.runID
}

// Observe queues a for writing.
func (j *Journal) Observe(a action.Action, _ *store.State) {
	payload := a.Payload
	if r, ok := payload.(Redactor); ok {
		payload = r.Redacted()
	}
	if payload != nil && j.opts.redact[a.Type] {
		payload = RedactedValue
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			j.opts.logger.Debug("journal payload not encodable", "type", a.Type, "error", err)
			data, _ = json.Marshal(fmt.Sprintf("%T", payload))
		}
		raw = data
	}
	j.q.Enqueue(Entry{
		RunID:   j.opts.runID,
		Seq:     a.Seq,
		Type:    string(a.Type),
		TaskID:  a.TaskID,
		Payload: raw,
	})
}

// Run writes queued entries until ctx is done or Close is called, then
// writes whatever is still queued.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case _, ok := <-j.q.Wait():
			j.flush(ctx)
			if !ok {
				return nil
			}
		}
	}
}

// Close stops Run after a final write.
func (j *Journal) Close() {
	j.q.Close()
}

func (j *Journal) flush(ctx context.Context) {
	batch := j.q.DrainAll()
	if len(batch) == 0 {
		return
	}
	err := j.sink.AppendEntries(ctx, batch)
	j.opts.metrics.PersistWrite("journal", err)
	if err != nil {
		j.opts.logger.Error("journal write failed", "entries", len(batch), "error", err)
	}
}

// AppendEntries inserts entries in one transaction. Re-inserting an existing
// (run_id, seq) is a no-op.
func (s *SQLiteStorage) AppendEntries(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal (run_id, seq, type, task_id, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		payload := string(e.Payload)
		if payload == "" {
			payload = "null"
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Seq, e.Type, e.TaskID, payload); err != nil {
			return fmt.Errorf("append journal seq %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// LastRunID returns the run id of the most recent entry, or "".
func (s *SQLiteStorage) LastRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM journal ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last run: %w", err)
	}
	return id, nil
}

// Entries returns the last limit entries of a run in sequence order. A
// limit <= 0 returns the whole run.
func (s *SQLiteStorage) Entries(ctx context.Context, runID string, limit int) ([]Entry, error) {
	query := `SELECT run_id, seq, type, task_id, payload FROM journal WHERE run_id = ? ORDER BY seq DESC`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Type, &e.TaskID, &payload); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if payload != "null" {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// NoopSink discards entries.
type NoopSink struct{}

// AppendEntries does nothing.
func (NoopSink) AppendEntries(context.Context, []Entry) error { return nil }
