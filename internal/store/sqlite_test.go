package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_SaveAndListChunks(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.SaveChunks(ctx, []model.ChunkRecord{
		{MemoryID: "m1", Text: "rent is $1,800", Metadata: map[string]any{"source": "budget.pdf", "chunk_index": 0}},
		{MemoryID: "m2", Text: "loans are $2,100", Metadata: map[string]any{"source": "budget.pdf", "chunk_index": 1}},
		{MemoryID: "m3", Text: "a note", Metadata: map[string]any{"type": "note"}},
	})
	require.NoError(t, err)

	all, err := s.ListChunks(ctx, ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rent is $1,800", all[0].Text)
	assert.Equal(t, "budget.pdf", all[0].Metadata["source"])

	bySource, err := s.ListChunks(ctx, ChunkFilter{Source: "budget.pdf"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_SaveChunks_UpsertOverwrites(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []model.ChunkRecord{{MemoryID: "m1", Text: "old"}}))
	require.NoError(t, s.SaveChunks(ctx, []model.ChunkRecord{{MemoryID: "m1", Text: "new"}}))

	all, err := s.ListChunks(ctx, ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Text)
}

func TestSQLite_SaveChunks_Empty(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	require.NoError(t, s.SaveChunks(context.Background(), nil))
}

func TestSQLite_DeleteChunks(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []model.ChunkRecord{
		{MemoryID: "m1", Text: "a"},
		{MemoryID: "m2", Text: "b"},
		{MemoryID: "m3", Text: "c"},
	}))

	require.NoError(t, s.DeleteChunks(ctx, []string{"m1", "m3"}))

	all, err := s.ListChunks(ctx, ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m2", all[0].MemoryID)

	require.NoError(t, s.DeleteAllChunks(ctx))
	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLite_ListChunks_LimitOffset(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var recs []model.ChunkRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, model.ChunkRecord{
			MemoryID:  string(rune('a' + i)),
			Text:      "chunk",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, s.SaveChunks(ctx, recs))

	page, err := s.ListChunks(ctx, ChunkFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].MemoryID)
	assert.Equal(t, "d", page[1].MemoryID)
}

func TestSQLite_AnswerCache(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	got, err := s.GetCachedAnswer(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetCachedAnswer(ctx, "k1", []byte(`{"text":"answer"}`), time.Hour))

	got, err = s.GetCachedAnswer(ctx, "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"answer"}`, string(got))

	// Overwrite.
	require.NoError(t, s.SetCachedAnswer(ctx, "k1", []byte(`{"text":"fresh"}`), time.Hour))
	got, err = s.GetCachedAnswer(ctx, "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"fresh"}`, string(got))
}

func TestSQLite_AnswerCache_Expiry(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedAnswer(ctx, "stale", []byte(`{}`), -time.Minute))

	got, err := s.GetCachedAnswer(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.DeleteExpiredAnswers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_DeleteAllAnswers(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedAnswer(ctx, "k1", []byte(`{}`), time.Hour))
	require.NoError(t, s.SetCachedAnswer(ctx, "k2", []byte(`{}`), time.Hour))

	require.NoError(t, s.DeleteAllAnswers(ctx))

	for _, key := range []string{"k1", "k2"} {
		got, err := s.GetCachedAnswer(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSQLite_QueryLog(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.AppendQueryLog(ctx, model.QueryRecord{
		Query:         "what is my rent",
		RecallSuccess: true,
		LatencyMillis: 420,
		ResultsCount:  3,
		Source:        model.SourceContext,
	}))
	require.NoError(t, s.AppendQueryLog(ctx, model.QueryRecord{
		Query:  "unknown thing",
		Source: model.SourceLLMKnowledge,
		Error:  "no results",
	}))

	recs, err := s.ListQueryLogs(ctx, QueryLogFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "unknown thing", recs[0].Query)
	assert.Equal(t, "no results", recs[0].Error)
	assert.Equal(t, "what is my rent", recs[1].Query)
	assert.True(t, recs[1].RecallSuccess)
	assert.Equal(t, int64(420), recs[1].LatencyMillis)
	assert.NotEmpty(t, recs[1].ID)
}

func TestSQLite_QueryLog_SinceFilter(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	old := model.QueryRecord{Query: "old", Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	recent := model.QueryRecord{Query: "recent", Timestamp: time.Now().UTC()}
	require.NoError(t, s.AppendQueryLog(ctx, old))
	require.NoError(t, s.AppendQueryLog(ctx, recent))

	recs, err := s.ListQueryLogs(ctx, QueryLogFilter{Since: time.Now().UTC().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "recent", recs[0].Query)
}
