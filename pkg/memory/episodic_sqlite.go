package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteEpisodicStore is a file-backed EpisodicStore. The schema is an
// implementation detail behind the same contract as the in-memory
// store; I/O failures surface as ErrStorageBackend.
type SQLiteEpisodicStore struct {
	db      *sql.DB
	dim     int
	monitor Monitor
}

// NewSQLiteEpisodicStore creates/opens the episodic database at path.
func NewSQLiteEpisodicStore(path string, dim int, monitor Monitor) (*SQLiteEpisodicStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create episodic db dir: %v", ErrStorageBackend, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", ErrStorageBackend, err)
	}
	// Single shared connection avoids writer lock contention with
	// SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteEpisodicStore{db: db, dim: dim, monitor: monitor}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteEpisodicStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS episodic_events (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			context_json TEXT NOT NULL DEFAULT '{}',
			embedding_json TEXT NOT NULL DEFAULT '[]',
			provenance TEXT NOT NULL DEFAULT 'direct'
		);`,
		`CREATE INDEX IF NOT EXISTS episodic_events_time_idx ON episodic_events(timestamp_ms DESC, seq ASC);`,
		`CREATE INDEX IF NOT EXISTS episodic_events_type_idx ON episodic_events(event_type, seq ASC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: init episodic schema failed on %q: %v", ErrStorageBackend, trimSQL(stmt), err)
		}
	}
	return nil
}

func (s *SQLiteEpisodicStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteEpisodicStore) StoreEvent(ctx context.Context, ev EpisodicEvent) error {
	if err := validateEvent(&ev, s.dim); err != nil {
		return err
	}
	start := time.Now()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodic_events WHERE id = ?`, ev.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check event id: %v", ErrStorageBackend, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: event %q", ErrDuplicateID, ev.ID)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO episodic_events
		(id, seq, timestamp_ms, event_type, context_json, embedding_json, provenance)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM episodic_events), ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UnixMilli(), ev.Type, encodeAnyMap(ev.Context), encodeVector(ev.Embedding), ev.Provenance)
	if err != nil {
		return fmt.Errorf("%w: insert event: %v", ErrStorageBackend, err)
	}

	s.recordTime("store.episodic", start)
	return nil
}

func (s *SQLiteEpisodicStore) RetrieveRecent(ctx context.Context, count int) ([]EpisodicEvent, error) {
	if count <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp_ms, event_type, context_json, embedding_json, provenance
		FROM episodic_events ORDER BY timestamp_ms DESC, seq ASC LIMIT ?`, count)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent events: %v", ErrStorageBackend, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteEpisodicStore) RetrieveByType(ctx context.Context, eventType string) ([]EpisodicEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp_ms, event_type, context_json, embedding_json, provenance
		FROM episodic_events WHERE event_type = ? ORDER BY seq ASC`, eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: list events by type: %v", ErrStorageBackend, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteEpisodicStore) SimilaritySearch(ctx context.Context, query []float32, k int) ([]EventMatch, error) {
	if s.dim > 0 && len(query) != s.dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, s.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp_ms, event_type, context_json, embedding_json, provenance
		FROM episodic_events WHERE embedding_json != '[]' ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan events: %v", ErrStorageBackend, err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	matches := make([]EventMatch, 0, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches = append(matches, EventMatch{Event: ev, Score: cosineSimilarity(query, ev.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	s.recordTime("search.episodic", start)
	return matches, nil
}

func (s *SQLiteEpisodicStore) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodic_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count events: %v", ErrStorageBackend, err)
	}
	return n, nil
}

func (s *SQLiteEpisodicStore) recordTime(op string, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordOperationTime(op, time.Since(start))
	}
}

func scanEvents(rows *sql.Rows) ([]EpisodicEvent, error) {
	out := []EpisodicEvent{}
	for rows.Next() {
		var (
			ev            EpisodicEvent
			tsMS          int64
			contextJSON   string
			embeddingJSON string
		)
		if err := rows.Scan(&ev.ID, &tsMS, &ev.Type, &contextJSON, &embeddingJSON, &ev.Provenance); err != nil {
			return nil, fmt.Errorf("%w: scan event row: %v", ErrStorageBackend, err)
		}
		ev.Timestamp = time.UnixMilli(tsMS)
		ev.Context = decodeAnyMap(contextJSON)
		ev.Embedding = decodeVector(embeddingJSON)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate event rows: %v", ErrStorageBackend, err)
	}
	return out, nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func encodeAnyMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeAnyMap(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeVector(raw string) []float32 {
	if raw == "" || raw == "[]" {
		return nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
