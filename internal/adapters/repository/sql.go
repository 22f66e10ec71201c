package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/okian/guildboard/internal/adapters/repository/migrations"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/pkg/metrics"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists events through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens (creating if needed) a SQLite database file and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", ErrNotConfigured)
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	return finishOpen(ctx, db, dialectSQLite)
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required: %w", ErrNotConfigured)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return finishOpen(ctx, db, dialectPostgres)
}

func finishOpen(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db, d, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordStoreOperation(op, outcome, float64(time.Since(start).Microseconds())/1000)
}

// SaveEvent upserts the event row and the given participants in one transaction.
func (s *SQLStore) SaveEvent(ctx context.Context, rec model.EventRecord, participants ...model.ParticipantRecord) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if rec.ID == "" {
		return fmt.Errorf("event id is required: %w", model.ErrValidation)
	}
	defer func(start time.Time) { observe("save_event", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", rec.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
INSERT INTO events (id, kind, duration_ms, state, created_at, started_at, ends_at, finished_at, failure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    state = excluded.state,
    started_at = excluded.started_at,
    ends_at = excluded.ends_at,
    finished_at = excluded.finished_at,
    failure = excluded.failure`),
		rec.ID, string(rec.Kind), rec.Duration.Milliseconds(), string(rec.State),
		toMillis(rec.CreatedAt), toMillis(rec.StartedAt), toMillis(rec.EndsAt), toMillis(rec.FinishedAt),
		rec.Failure,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", rec.ID, err)
	}

	if len(participants) > 0 {
		stmt, perr := tx.PrepareContext(ctx, s.dialect.rebind(`
INSERT INTO event_participants (event_id, player_id, display_name, position, enrolled_at,
    baseline_snapshot, baseline_error, current_snapshot, current_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id, player_id) DO UPDATE SET
    display_name = excluded.display_name,
    baseline_snapshot = excluded.baseline_snapshot,
    baseline_error = excluded.baseline_error,
    current_snapshot = excluded.current_snapshot,
    current_error = excluded.current_error`))
		if perr != nil {
			err = fmt.Errorf("prepare participant upsert: %w", perr)
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range participants {
			base, jerr := encodeSnapshot(p.Baseline)
			if jerr != nil {
				err = jerr
				return err
			}
			cur, jerr := encodeSnapshot(p.Current)
			if jerr != nil {
				err = jerr
				return err
			}
			if _, err = stmt.ExecContext(ctx,
				rec.ID, p.PlayerID, p.DisplayName, p.Position, toMillis(p.EnrolledAt),
				base, p.BaselineError, cur, p.CurrentError,
			); err != nil {
				return fmt.Errorf("upsert participant %s/%s: %w", rec.ID, p.PlayerID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteEvent removes an event and its roster. Deleting a missing event is not an error.
func (s *SQLStore) DeleteEvent(ctx context.Context, id string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	defer func(start time.Time) { observe("delete_event", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM event_participants WHERE event_id = ?`), id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete participants %s: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM events WHERE id = ?`), id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", id, err)
	}
	return nil
}

// LoadEvents returns every stored event with its roster, oldest first.
func (s *SQLStore) LoadEvents(ctx context.Context) (out []model.StoredEvent, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	defer func(start time.Time) { observe("load_events", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, duration_ms, state, created_at, started_at, ends_at, finished_at, failure
FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	index := map[string]int{}
	for rows.Next() {
		var (
			rec                                  model.EventRecord
			kind, state                          string
			durMs, created, started, ends, ended int64
		)
		if err = rows.Scan(&rec.ID, &kind, &durMs, &state, &created, &started, &ends, &ended, &rec.Failure); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Kind = model.Kind(kind)
		rec.State = model.State(state)
		if !rec.State.Valid() {
			_ = rows.Close()
			return nil, fmt.Errorf("event %s state %q: %w", rec.ID, state, ErrCorruptRow)
		}
		rec.Duration = time.Duration(durMs) * time.Millisecond
		rec.CreatedAt = fromMillis(created)
		rec.StartedAt = fromMillis(started)
		rec.EndsAt = fromMillis(ends)
		rec.FinishedAt = fromMillis(ended)
		index[rec.ID] = len(out)
		out = append(out, model.StoredEvent{Event: rec})
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	_ = rows.Close()

	prows, err := s.db.QueryContext(ctx, `
SELECT event_id, player_id, display_name, position, enrolled_at,
    baseline_snapshot, baseline_error, current_snapshot, current_error
FROM event_participants ORDER BY event_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer func() { _ = prows.Close() }()
	for prows.Next() {
		var (
			p         model.ParticipantRecord
			enrolled  int64
			base, cur sql.NullString
		)
		if err = prows.Scan(&p.EventID, &p.PlayerID, &p.DisplayName, &p.Position, &enrolled,
			&base, &p.BaselineError, &cur, &p.CurrentError); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.EnrolledAt = fromMillis(enrolled)
		if p.Baseline, err = decodeSnapshot(base); err != nil {
			return nil, fmt.Errorf("participant %s/%s baseline: %w", p.EventID, p.PlayerID, err)
		}
		if p.Current, err = decodeSnapshot(cur); err != nil {
			return nil, fmt.Errorf("participant %s/%s current: %w", p.EventID, p.PlayerID, err)
		}
		i, ok := index[p.EventID]
		if !ok {
			continue
		}
		out[i].Participants = append(out[i].Participants, p)
	}
	if err = prows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

func encodeSnapshot(s *model.Snapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeSnapshot(v sql.NullString) (*model.Snapshot, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var s model.Snapshot
	if err := json.Unmarshal([]byte(v.String), &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRow, err)
	}
	return &s, nil
}
