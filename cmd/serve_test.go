package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

type fakeMemoryAPI struct {
	ingestRes *model.IngestResult
	ingestErr error
	noteID    string
	noteErr   error
	deleted   int
	resetErr  error
	stats     *model.IndexStats
}

func (f *fakeMemoryAPI) IngestFile(_ context.Context, _ string) (*model.IngestResult, error) {
	return f.ingestRes, f.ingestErr
}

func (f *fakeMemoryAPI) UpsertNote(_ context.Context, _ string, _ map[string]any) (string, error) {
	return f.noteID, f.noteErr
}

func (f *fakeMemoryAPI) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	f.deleted = len(ids)
	return len(ids), nil
}

func (f *fakeMemoryAPI) Reset(_ context.Context) error { return f.resetErr }

func (f *fakeMemoryAPI) Stats(_ context.Context) (*model.IndexStats, error) {
	return f.stats, nil
}

type fakeAnswerAPI struct {
	ans *model.Answer
	err error
}

func (f *fakeAnswerAPI) Answer(_ context.Context, _ string, _ int) (*model.Answer, error) {
	return f.ans, f.err
}

type fakeSearchAPI struct {
	mems []model.Memory
	err  error
}

func (f *fakeSearchAPI) Search(_ context.Context, _ string, _ int) ([]model.Memory, error) {
	return f.mems, f.err
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleAsk(t *testing.T) {
	t.Parallel()

	chain := &fakeAnswerAPI{ans: &model.Answer{Text: "the rent is $1,800", Source: model.SourceContext}}
	handler := handleAsk(chain)

	body := bytes.NewBufferString(`{"question":"how much is rent","k":5}`)
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/ask", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var ans model.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ans))
	assert.Equal(t, "the rent is $1,800", ans.Text)
	assert.Equal(t, model.SourceContext, ans.Source)
}

func TestHandleAsk_BadRequests(t *testing.T) {
	t.Parallel()

	handler := handleAsk(&fakeAnswerAPI{})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"k":3}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is required")
}

func TestHandleAsk_InternalError(t *testing.T) {
	t.Parallel()

	handler := handleAsk(&fakeAnswerAPI{err: eris.New("model down")})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"q"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	t.Parallel()

	handler := handleSearch(&fakeSearchAPI{mems: []model.Memory{
		{ID: "m1", Text: "Rent is $1,800.", Score: 0.9},
	}})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=rent&k=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []model.Memory `json:"results"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "m1", resp.Results[0].ID)
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	handleSearch(&fakeSearchAPI{})(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	t.Parallel()

	mem := &fakeMemoryAPI{ingestRes: &model.IngestResult{File: "notes.txt", DocType: model.TypeText, Chunks: 2}}
	handler := handleUpload(mem, 50)

	body, contentType := multipartUpload(t, "file", "notes.txt", []byte("some document text"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res model.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Chunks)
}

func TestHandleUpload_MissingFile(t *testing.T) {
	t.Parallel()

	body, contentType := multipartUpload(t, "wrong_field", "x.txt", []byte("text"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handleUpload(&fakeMemoryAPI{}, 50)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpload_TooLarge(t *testing.T) {
	t.Parallel()

	// 1 MB limit, 2 MB payload.
	body, contentType := multipartUpload(t, "file", "big.txt", bytes.Repeat([]byte("x"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handleUpload(&fakeMemoryAPI{}, 1)(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleNote(t *testing.T) {
	t.Parallel()

	handler := handleNote(&fakeMemoryAPI{noteID: "note-1"})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader(`{"text":"remember this"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"note-1"}`, rec.Body.String())
}

func TestHandleNote_MissingText(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	handleNote(&fakeMemoryAPI{})(rec, httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDelete(t *testing.T) {
	t.Parallel()

	mem := &fakeMemoryAPI{}
	rec := httptest.NewRecorder()
	handleDelete(mem)(rec, httptest.NewRequest(http.MethodDelete, "/api/memories", strings.NewReader(`{"ids":["a","b"]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())
	assert.Equal(t, 2, mem.deleted)
}

func TestHandleDelete_MissingIDs(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	handleDelete(&fakeMemoryAPI{})(rec, httptest.NewRequest(http.MethodDelete, "/api/memories", strings.NewReader(`{"ids":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReset(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	handleReset(&fakeMemoryAPI{})(rec, httptest.NewRequest(http.MethodPost, "/api/memories/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"reset"}`, rec.Body.String())
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	mem := &fakeMemoryAPI{stats: &model.IndexStats{VectorCount: 42, Dimension: 1536, IndexName: "cca-memories"}}

	rec := httptest.NewRecorder()
	handleStats(mem)(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.IndexStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 42, stats.VectorCount)
}
