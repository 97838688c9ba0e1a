package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths (chunk mirror writes and cache lookups).
var preparedStatements = map[string]string{
	"save_chunk": `INSERT INTO chunks (memory_id, text, metadata, source, created_at) VALUES ($1, $2, $3, $4, $5)
	               ON CONFLICT (memory_id) DO UPDATE SET text = $2, metadata = $3, source = $4`,
	"get_cached_answer": `SELECT data FROM answer_cache WHERE key = $1 AND expires_at > now()`,
	"set_cached_answer": `INSERT INTO answer_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
	                      ON CONFLICT (key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
	"append_query_log": `INSERT INTO query_log (id, ts, query, recall_success, latency_ms, results_count, source, error, client_key)
	                     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS chunks (
	memory_id  TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	metadata   JSONB,
	source     TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answer_cache (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS query_log (
	id             TEXT PRIMARY KEY,
	ts             TIMESTAMPTZ NOT NULL,
	query          TEXT NOT NULL,
	recall_success BOOLEAN NOT NULL DEFAULT false,
	latency_ms     BIGINT NOT NULL DEFAULT 0,
	results_count  INTEGER NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT '',
	error          TEXT,
	client_key     TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE INDEX IF NOT EXISTS idx_answer_cache_expires_at ON answer_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_query_log_ts ON query_log(ts);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []model.ChunkRecord) error {
	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal chunk metadata")
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO chunks (memory_id, text, metadata, source, created_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (memory_id) DO UPDATE SET text = $2, metadata = $3, source = $4`,
			c.MemoryID, c.Text, metaJSON, chunkSource(c.Metadata), createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert chunk %s", c.MemoryID)
		}
	}
	return nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, filter ChunkFilter) ([]model.ChunkRecord, error) {
	query := `SELECT memory_id, text, metadata, created_at FROM chunks WHERE true`
	var args []any

	if filter.Source != "" {
		query += ` AND source = $1`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at ASC, memory_id ASC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chunks")
	}
	defer rows.Close()

	var chunks []model.ChunkRecord
	for rows.Next() {
		var c model.ChunkRecord
		var metaJSON []byte
		if err := rows.Scan(&c.MemoryID, &c.Text, &metaJSON, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chunk")
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal chunk metadata")
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, eris.Wrap(rows.Err(), "postgres: list chunks iterate")
}

func (s *PostgresStore) DeleteChunks(ctx context.Context, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE memory_id = ANY($1)`, memoryIDs)
	return eris.Wrap(err, "postgres: delete chunks")
}

func (s *PostgresStore) DeleteAllChunks(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks`)
	return eris.Wrap(err, "postgres: delete all chunks")
}

func (s *PostgresStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count chunks")
}

func (s *PostgresStore) GetCachedAnswer(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM answer_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached answer")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedAnswer(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answer_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached answer")
}

func (s *PostgresStore) DeleteExpiredAnswers(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM answer_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired answers")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteAllAnswers(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM answer_cache`)
	return eris.Wrap(err, "postgres: delete all answers")
}

func (s *PostgresStore) AppendQueryLog(ctx context.Context, rec model.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO query_log (id, ts, query, recall_success, latency_ms, results_count, source, error, client_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Timestamp, rec.Query, rec.RecallSuccess, rec.LatencyMillis,
		rec.ResultsCount, string(rec.Source), rec.Error, rec.ClientKey,
	)
	return eris.Wrap(err, "postgres: append query log")
}

func (s *PostgresStore) ListQueryLogs(ctx context.Context, filter QueryLogFilter) ([]model.QueryRecord, error) {
	query := `SELECT id, ts, query, recall_success, latency_ms, results_count, source, error, client_key
	          FROM query_log WHERE true`
	var args []any

	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += ` AND ts >= $` + itoa(len(args))
	}
	query += ` ORDER BY ts DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list query logs")
	}
	defer rows.Close()

	var recs []model.QueryRecord
	for rows.Next() {
		var r model.QueryRecord
		var errMsg, clientKey *string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Query, &r.RecallSuccess,
			&r.LatencyMillis, &r.ResultsCount, &r.Source, &errMsg, &clientKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query log")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if clientKey != nil {
			r.ClientKey = *clientKey
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list query logs iterate")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
