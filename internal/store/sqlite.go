package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chunks (
	memory_id  TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	metadata   TEXT,
	source     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS answer_cache (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS query_log (
	id             TEXT PRIMARY KEY,
	ts             DATETIME NOT NULL,
	query          TEXT NOT NULL,
	recall_success INTEGER NOT NULL DEFAULT 0,
	latency_ms     INTEGER NOT NULL DEFAULT 0,
	results_count  INTEGER NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT '',
	error          TEXT,
	client_key     TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE INDEX IF NOT EXISTS idx_answer_cache_expires_at ON answer_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_query_log_ts ON query_log(ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []model.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save chunks")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (memory_id, text, metadata, source, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(memory_id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata, source = excluded.source`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save chunks")
	}
	defer stmt.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal chunk metadata")
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, c.MemoryID, c.Text, string(metaJSON), chunkSource(c.Metadata), createdAt); err != nil {
			return eris.Wrapf(err, "sqlite: insert chunk %s", c.MemoryID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save chunks")
}

func (s *SQLiteStore) ListChunks(ctx context.Context, filter ChunkFilter) ([]model.ChunkRecord, error) {
	query := `SELECT memory_id, text, metadata, created_at FROM chunks WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at ASC, memory_id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chunks")
	}
	defer rows.Close()

	var chunks []model.ChunkRecord
	for rows.Next() {
		var c model.ChunkRecord
		var metaJSON sql.NullString
		if err := rows.Scan(&c.MemoryID, &c.Text, &metaJSON, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chunk")
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal chunk metadata")
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, eris.Wrap(rows.Err(), "sqlite: list chunks iterate")
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	args := make([]any, len(memoryIDs))
	for i, id := range memoryIDs {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE memory_id IN (`+placeholders+`)`, args...,
	)
	return eris.Wrap(err, "sqlite: delete chunks")
}

func (s *SQLiteStore) DeleteAllChunks(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return eris.Wrap(err, "sqlite: delete all chunks")
}

func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count chunks")
}

func (s *SQLiteStore) GetCachedAnswer(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM answer_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached answer")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedAnswer(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answer_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached answer")
}

func (s *SQLiteStore) DeleteExpiredAnswers(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM answer_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired answers")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteAllAnswers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM answer_cache`)
	return eris.Wrap(err, "sqlite: delete all answers")
}

func (s *SQLiteStore) AppendQueryLog(ctx context.Context, rec model.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, ts, query, recall_success, latency_ms, results_count, source, error, client_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.Query, rec.RecallSuccess, rec.LatencyMillis,
		rec.ResultsCount, string(rec.Source), rec.Error, rec.ClientKey,
	)
	return eris.Wrap(err, "sqlite: append query log")
}

func (s *SQLiteStore) ListQueryLogs(ctx context.Context, filter QueryLogFilter) ([]model.QueryRecord, error) {
	query := `SELECT id, ts, query, recall_success, latency_ms, results_count, source, error, client_key
	          FROM query_log WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY ts DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list query logs")
	}
	defer rows.Close()

	var recs []model.QueryRecord
	for rows.Next() {
		var r model.QueryRecord
		var errMsg, clientKey sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Query, &r.RecallSuccess,
			&r.LatencyMillis, &r.ResultsCount, &r.Source, &errMsg, &clientKey); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query log")
		}
		r.Error = errMsg.String
		r.ClientKey = clientKey.String
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list query logs iterate")
}

// chunkSource pulls the source filename out of chunk metadata for indexing.
func chunkSource(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if src, ok := meta["source"].(string); ok {
		return src
	}
	return ""
}
