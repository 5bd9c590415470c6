package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// Repository stores one row per session document, keyed by session id.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at dsn and applies migrations.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is its own database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			start_time TEXT NOT NULL,
			end_time TEXT,
			data TEXT NOT NULL DEFAULT '[]',
			total_score REAL NOT NULL DEFAULT 0,
			positive INTEGER NOT NULL DEFAULT 0,
			neutral INTEGER NOT NULL DEFAULT 0,
			negative INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Upsert inserts the session or replaces the row with the same id. The row
// keeps its position and creation time.
func (r *Repository) Upsert(ctx context.Context, s tracking.Session) error {
	events := s.Events
	if events == nil {
		events = []tracking.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	now := formatTime(r.now())
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, start_time, end_time, data, total_score, positive, neutral, negative, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			data = excluded.data,
			total_score = excluded.total_score,
			positive = excluded.positive,
			neutral = excluded.neutral,
			negative = excluded.negative,
			updated_at = excluded.updated_at`,
		s.ID, formatTime(s.StartTime), nullableTime(s.EndTime), string(data), s.TotalScore,
		s.EmotionSummary.Positive, s.EmotionSummary.Neutral, s.EmotionSummary.Negative,
		now, now)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]tracking.Session, error) {
	docs, err := r.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tracking.Session, len(docs))
	for i, doc := range docs {
		out[i] = documentSession(doc)
	}
	return out, nil
}

// ListDocuments returns every row in insertion order with its timestamps.
func (r *Repository) ListDocuments(ctx context.Context) ([]tracking.Document, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var docs []tracking.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return docs, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (tracking.Session, bool, error) {
	doc, ok, err := r.FindDocument(ctx, id)
	if err != nil || !ok {
		return tracking.Session{}, ok, err
	}
	return documentSession(doc), true, nil
}

// FindDocument returns the stored document for id.
func (r *Repository) FindDocument(ctx context.Context, id string) (tracking.Document, bool, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE session_id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Document{}, false, nil
	}
	if err != nil {
		return tracking.Document{}, false, err
	}
	return doc, true, nil
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Repository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

const selectColumns = `SELECT session_id, start_time, end_time, data, total_score, positive, neutral, negative, created_at, updated_at FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (tracking.Document, error) {
	var (
		doc                 tracking.Document
		start, created, upd string
		end                 sql.NullString
		data                string
	)
	err := row.Scan(&doc.SessionID, &start, &end, &data, &doc.TotalScore,
		&doc.EmotionSummary.Positive, &doc.EmotionSummary.Neutral, &doc.EmotionSummary.Negative,
		&created, &upd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("scan session: %w", err)
	}

	doc.StartTime = parseTime(start)
	if end.Valid {
		doc.EndTime = parseTime(end.String)
	}
	doc.CreatedAt = parseTime(created)
	doc.UpdatedAt = parseTime(upd)

	if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
		log.Printf("[storage] session %s has unreadable data, treating it as empty: %v", doc.SessionID, err)
		doc.Data = nil
	}
	if doc.Data == nil {
		doc.Data = []tracking.Event{}
	}
	// The summary columns are for querying; reads trust only the events.
	doc.EmotionSummary, doc.TotalScore = tracking.Summarize(doc.Data)
	return doc, nil
}

func documentSession(doc tracking.Document) tracking.Session {
	s := tracking.Session{
		ID:             doc.SessionID,
		Events:         doc.Data,
		TotalScore:     doc.TotalScore,
		EmotionSummary: doc.EmotionSummary,
	}
	if doc.StartTime != nil {
		s.StartTime = *doc.StartTime
	}
	if doc.EndTime != nil {
		end := *doc.EndTime
		s.EndTime = &end
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
