package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/OdinManiac/regelum/internal/engine"
	"github.com/OdinManiac/regelum/internal/ir"
)

// Recorder appends committed tick snapshots to a Store. Wire it into
// the engine with engine.WithObserver(rec.Observe).
type Recorder struct {
	store *Store
	seq   int64
}

// NewRecorder creates a recorder over an open store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Observe implements engine.TickObserver. Failures are logged, not
// surfaced: trace recording must never abort a tick.
func (r *Recorder) Observe(runToken string, snap engine.Snapshot) {
	if err := r.record(runToken, snap); err != nil {
		slog.Error("trace record failed",
			"run", runToken,
			"tag", snap.Tag.String(),
			"error", err,
		)
	}
}

func (r *Recorder) record(runToken string, snap engine.Snapshot) error {
	ctx := context.Background()
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	seq := r.seq
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticks (run_token, seq, t, micro) VALUES (?, ?, ?, ?)
	`, runToken, seq, snap.Tag.Time, snap.Tag.Micro); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}

	insert := func(kind string, values map[string]ir.Value) error {
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tick_values (run_token, seq, kind, name, value) VALUES (?, ?, ?, ?, ?)
			`, runToken, seq, kind, name, ir.FormatValue(values[name])); err != nil {
				return fmt.Errorf("insert %s %q: %w", kind, name, err)
			}
		}
		return nil
	}
	if err := insert("var", snap.Variables); err != nil {
		return err
	}
	if err := insert("out", snap.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.seq++
	return nil
}

// TickRecord is one replayed trace row set.
type TickRecord struct {
	Seq       int64
	Tag       ir.Tag
	Variables map[string]string
	Outputs   map[string]string
}

// ReadRun returns every recorded tick of a run in sequence order.
func (s *Store) ReadRun(ctx context.Context, runToken string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, t, micro FROM ticks WHERE run_token = ? ORDER BY seq
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}
	defer rows.Close()

	var records []TickRecord
	for rows.Next() {
		var rec TickRecord
		if err := rows.Scan(&rec.Seq, &rec.Tag.Time, &rec.Tag.Micro); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Variables = make(map[string]string)
		rec.Outputs = make(map[string]string)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}

	for i := range records {
		if err := s.readValues(ctx, runToken, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) readValues(ctx context.Context, runToken string, rec *TickRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, value FROM tick_values
		WHERE run_token = ? AND seq = ? ORDER BY kind, name
	`, runToken, rec.Seq)
	if err != nil {
		return fmt.Errorf("read values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, name, value string
		if err := rows.Scan(&kind, &name, &value); err != nil {
			return fmt.Errorf("scan value: %w", err)
		}
		if kind == "var" {
			rec.Variables[name] = value
		} else {
			rec.Outputs[name] = value
		}
	}
	return rows.Err()
}

// Runs lists every recorded run token, most recent first by rowid.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT run_token FROM ticks ORDER BY rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, tok)
	}
	return runs, rows.Err()
}
