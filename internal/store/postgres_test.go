package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_SaveChunks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO chunks`).
		WithArgs("m1", "rent is $1,800", pgxmock.AnyArg(), "budget.pdf", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveChunks(context.Background(), []model.ChunkRecord{
		{MemoryID: "m1", Text: "rent is $1,800", Metadata: map[string]any{"source": "budget.pdf"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListChunks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"memory_id", "text", "metadata", "created_at"}).
		AddRow("m1", "chunk one", []byte(`{"source":"a.pdf"}`), now).
		AddRow("m2", "chunk two", []byte(nil), now)

	mock.ExpectQuery(`SELECT memory_id, text, metadata, created_at FROM chunks`).
		WillReturnRows(rows)

	got, err := s.ListChunks(context.Background(), ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.pdf", got[0].Metadata["source"])
	assert.Nil(t, got[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteChunks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM chunks WHERE memory_id = ANY`).
		WithArgs([]string{"m1", "m2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.DeleteChunks(context.Background(), []string{"m1", "m2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteChunks_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.DeleteChunks(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountChunks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chunks`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedAnswer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM answer_cache`).
		WithArgs("missing-key").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetCachedAnswer(context.Background(), "missing-key")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedAnswer_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("k1", []byte(`{"text":"answer"}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedAnswer(context.Background(), "k1", []byte(`{"text":"answer"}`), 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAllAnswers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM answer_cache`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	err := s.DeleteAllAnswers(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendQueryLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO query_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "what is my rent", true,
			int64(420), 3, "context", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendQueryLog(context.Background(), model.QueryRecord{
		Query:         "what is my rent",
		RecallSuccess: true,
		LatencyMillis: 420,
		ResultsCount:  3,
		Source:        model.SourceContext,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListQueryLogs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	errMsg := "no results"
	rows := pgxmock.NewRows([]string{
		"id", "ts", "query", "recall_success", "latency_ms", "results_count", "source", "error", "client_key",
	}).
		AddRow("q1", now, "recent", false, int64(10), 0, "llm_knowledge", &errMsg, (*string)(nil))

	mock.ExpectQuery(`SELECT id, ts, query`).
		WillReturnRows(rows)

	got, err := s.ListQueryLogs(context.Background(), QueryLogFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].Query)
	assert.Equal(t, "no results", got[0].Error)
	assert.Equal(t, model.SourceLLMKnowledge, got[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}
