// Package memory is the write and retrieval path for the vector index: note
// and document upserts, similarity search, and index lifecycle. Every chunk
// written to the index is mirrored in the local store so keyword search and
// export survive restarts.
package memory

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/chunker"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/cost"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/extract"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/resilience"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/sanitize"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/search"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/store"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/openai"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/pinecone"
)

const (
	upsertBatchSize   = 100
	ingestConcurrency = 4
)

// Service coordinates embeddings, the vector index, the chunk mirror, and
// the in-process keyword index.
type Service struct {
	cfg       *config.Config
	openai    openai.Client
	pinecone  pinecone.Client
	store     store.Store
	keyword   *search.KeywordIndex
	extractor *extract.Extractor
	breakers  *resilience.ServiceBreakers
	retry     resilience.RetryConfig
	costCalc  *cost.Calculator
}

// New creates the memory service with all dependencies.
func New(
	cfg *config.Config,
	oa openai.Client,
	pc pinecone.Client,
	st store.Store,
	ki *search.KeywordIndex,
	ex *extract.Extractor,
) *Service {
	return &Service{
		cfg:       cfg,
		openai:    oa,
		pinecone:  pc,
		store:     st,
		keyword:   ki,
		extractor: ex,
		breakers:  resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:     resilience.DefaultRetryConfig(),
		costCalc:  cost.NewCalculator(cost.DefaultRates()),
	}
}

// EnsureIndex creates the hosted index if missing and resolves its host.
func (s *Service) EnsureIndex(ctx context.Context) error {
	spec := pinecone.IndexSpec{
		Name:      s.cfg.Pinecone.Index,
		Dimension: s.cfg.OpenAI.EmbedDim,
		Metric:    "cosine",
		Cloud:     s.cfg.Pinecone.Cloud,
		Region:    s.cfg.Pinecone.Region,
	}
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.breakers.Get(resilience.ServicePinecone).Execute(ctx, func(ctx context.Context) error {
			return s.pinecone.EnsureIndex(ctx, spec)
		})
	})
}

func (s *Service) embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*openai.EmbeddingResponse, error) {
		return resilience.ExecuteVal(ctx, s.breakers.Get(resilience.ServiceOpenAI), func(ctx context.Context) (*openai.EmbeddingResponse, error) {
			return s.openai.Embed(ctx, texts)
		})
	})
	if err != nil {
		return nil, err
	}
	if resp.Usage.TotalTokens > 0 {
		zap.L().Debug("embedding usage",
			zap.Int("texts", len(texts)),
			zap.Int("tokens", resp.Usage.TotalTokens),
			zap.Float64("cost_usd", s.costCalc.Embedding(s.cfg.OpenAI.EmbedModel, resp.Usage.TotalTokens)),
		)
	}
	vectors := resp.Vectors()
	if len(vectors) != len(texts) {
		return nil, eris.Errorf("memory: embedding count mismatch: want %d, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// UpsertNote stores one atomic note and returns its generated ID.
func (s *Service) UpsertNote(ctx context.Context, text string, meta map[string]any) (string, error) {
	text = sanitize.Text(text, sanitize.MaxTextLength)
	if text == "" {
		return "", eris.New("memory: note text is empty after sanitization")
	}
	meta = sanitize.Metadata(meta)
	if _, ok := meta["type"]; !ok {
		meta["type"] = model.TypeNote
	}

	ids, err := s.upsertBatch(ctx, []string{text}, meta)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpsertMany stores pre-chunked texts, each chunk with its own metadata.
// Batches of 100 are embedded and upserted concurrently.
func (s *Service) UpsertMany(ctx context.Context, chunks []model.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batches := make([][]model.Chunk, 0, len(chunks)/upsertBatchSize+1)
	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[i:end])
	}

	idsByBatch := make([][]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() error {
			ids, err := s.upsertChunks(gctx, batch)
			if err != nil {
				return err
			}
			idsByBatch[bi] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ids []string
	for _, b := range idsByBatch {
		ids = append(ids, b...)
	}
	return ids, nil
}

// upsertBatch stores texts that share one metadata map.
func (s *Service) upsertBatch(ctx context.Context, texts []string, meta map[string]any) ([]string, error) {
	chunks := make([]model.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = model.Chunk{Text: t, Metadata: meta}
	}
	return s.upsertChunks(ctx, chunks)
}

func (s *Service) upsertChunks(ctx context.Context, chunks []model.Chunk) ([]string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.embed(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "memory: embed chunks")
	}

	ids := make([]string, len(chunks))
	vectors := make([]pinecone.Vector, len(chunks))
	records := make([]model.ChunkRecord, len(chunks))
	docs := make([]search.Document, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		ids[i] = uuid.New().String()
		md := map[string]any{"text": c.Text}
		for k, v := range c.Metadata {
			md[k] = v
		}
		vectors[i] = pinecone.Vector{ID: ids[i], Values: vecs[i], Metadata: md}
		records[i] = model.ChunkRecord{MemoryID: ids[i], Text: c.Text, Metadata: c.Metadata, CreatedAt: now}
		docs[i] = search.Document{ID: ids[i], Text: c.Text, Metadata: c.Metadata}
	}

	_, err = resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int, error) {
		return resilience.ExecuteVal(ctx, s.breakers.Get(resilience.ServicePinecone), func(ctx context.Context) (int, error) {
			return s.pinecone.Upsert(ctx, vectors)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "memory: upsert vectors")
	}

	// Mirror failures do not undo the index write; the mirror is derived
	// state and can be rebuilt.
	if err := s.store.SaveChunks(ctx, records); err != nil {
		zap.L().Warn("memory: chunk mirror write failed", zap.Error(err))
	}
	s.keyword.Add(docs...)

	zap.L().Info("memory: upserted chunks", zap.Int("count", len(ids)))
	return ids, nil
}

// Search returns the k nearest memories without scores.
func (s *Service) Search(ctx context.Context, query string, k int) ([]model.Memory, error) {
	mems, err := s.SearchScores(ctx, query, k)
	if err != nil {
		return nil, err
	}
	for i := range mems {
		mems[i].Score = 0
	}
	return mems, nil
}

// SearchScores returns the k nearest memories with similarity scores.
func (s *Service) SearchScores(ctx context.Context, query string, k int) ([]model.Memory, error) {
	query = sanitize.Query(query)
	if query == "" {
		return nil, eris.New("memory: query is empty after sanitization")
	}
	if k < 1 {
		k = 1
	}

	vecs, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, eris.Wrap(err, "memory: embed query")
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*pinecone.QueryResponse, error) {
		return resilience.ExecuteVal(ctx, s.breakers.Get(resilience.ServicePinecone), func(ctx context.Context) (*pinecone.QueryResponse, error) {
			return s.pinecone.Query(ctx, pinecone.QueryRequest{
				Vector:          vecs[0],
				TopK:            k,
				IncludeMetadata: true,
			})
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "memory: query index")
	}

	mems := make([]model.Memory, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		meta := map[string]any{}
		for key, v := range m.Metadata {
			meta[key] = v
		}
		text, _ := meta["text"].(string)
		delete(meta, "text")
		mems = append(mems, model.Memory{ID: m.ID, Text: text, Metadata: meta, Score: m.Score})
	}
	return mems, nil
}

// DeleteByIDs removes memories from the index, the mirror, and the keyword
// index. Returns how many IDs were submitted for deletion.
func (s *Service) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.breakers.Get(resilience.ServicePinecone).Execute(ctx, func(ctx context.Context) error {
			return s.pinecone.Delete(ctx, ids)
		})
	})
	if err != nil {
		return 0, eris.Wrap(err, "memory: delete vectors")
	}

	if err := s.store.DeleteChunks(ctx, ids); err != nil {
		zap.L().Warn("memory: chunk mirror delete failed", zap.Error(err))
	}
	for _, id := range ids {
		s.keyword.Remove(id)
	}

	zap.L().Info("memory: deleted memories", zap.Int("count", len(ids)))
	return len(ids), nil
}

// Reset recreates the index empty and clears all derived state.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.pinecone.DeleteIndex(ctx, s.cfg.Pinecone.Index); err != nil {
		// A missing index is the desired state; recreate regardless.
		zap.L().Warn("memory: delete index failed", zap.Error(err))
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return eris.Wrap(err, "memory: recreate index")
	}
	if err := s.store.DeleteAllChunks(ctx); err != nil {
		return eris.Wrap(err, "memory: clear chunk mirror")
	}
	// Cached answers are grounded in memories that no longer exist.
	if err := s.store.DeleteAllAnswers(ctx); err != nil {
		return eris.Wrap(err, "memory: clear answer cache")
	}
	s.keyword.Clear()

	zap.L().Info("memory: index reset", zap.String("index", s.cfg.Pinecone.Index))
	return nil
}

// Stats reports the hosted index size and dimension.
func (s *Service) Stats(ctx context.Context) (*model.IndexStats, error) {
	stats, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*pinecone.IndexStats, error) {
		return resilience.ExecuteVal(ctx, s.breakers.Get(resilience.ServicePinecone), func(ctx context.Context) (*pinecone.IndexStats, error) {
			return s.pinecone.Stats(ctx)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "memory: index stats")
	}
	return &model.IndexStats{
		VectorCount: stats.TotalVectorCount,
		Dimension:   stats.Dimension,
		IndexName:   s.cfg.Pinecone.Index,
	}, nil
}

// Export returns every mirrored chunk, optionally filtered by source.
func (s *Service) Export(ctx context.Context, source string) ([]model.ChunkRecord, error) {
	recs, err := s.store.ListChunks(ctx, store.ChunkFilter{Source: source})
	if err != nil {
		return nil, eris.Wrap(err, "memory: export chunks")
	}
	return recs, nil
}

// RebuildKeywordIndex reloads the keyword index from the chunk mirror.
// Called at startup so keyword search covers prior sessions.
func (s *Service) RebuildKeywordIndex(ctx context.Context) (int, error) {
	recs, err := s.store.ListChunks(ctx, store.ChunkFilter{})
	if err != nil {
		return 0, eris.Wrap(err, "memory: load chunk mirror")
	}

	docs := make([]search.Document, len(recs))
	for i, r := range recs {
		docs[i] = search.Document{ID: r.MemoryID, Text: r.Text, Metadata: r.Metadata}
	}
	s.keyword.Replace(docs)

	zap.L().Info("memory: keyword index rebuilt", zap.Int("documents", len(docs)))
	return len(docs), nil
}

// IngestFile extracts, chunks, and stores one document.
func (s *Service) IngestFile(ctx context.Context, path string) (*model.IngestResult, error) {
	res, err := s.extractor.File(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "memory: extract %s", filepath.Base(path))
	}
	return s.ingestText(ctx, res.Text, filepath.Base(path), res.DocType, res.UsedOCR)
}

// IngestText chunks and stores already-extracted text under a source name.
func (s *Service) IngestText(ctx context.Context, text, source, docType string) (*model.IngestResult, error) {
	return s.ingestText(ctx, text, source, docType, false)
}

func (s *Service) ingestText(ctx context.Context, text, source, docType string, usedOCR bool) (*model.IngestResult, error) {
	source = sanitize.Filename(source)

	chunks := chunker.ChunkWithMetadata(text, s.cfg.Chunk.Size, s.cfg.Chunk.Overlap, source)
	if len(chunks) == 0 {
		return nil, eris.Errorf("memory: no text extracted from %s", source)
	}

	total := 0
	for i := range chunks {
		chunks[i].Text = sanitize.Text(chunks[i].Text, sanitize.MaxTextLength)
		chunks[i].Metadata["type"] = docType
		chunks[i].Metadata = sanitize.Metadata(chunks[i].Metadata)
		total += len(chunks[i].Text)
	}

	ids, err := s.UpsertMany(ctx, chunks)
	if err != nil {
		return nil, err
	}

	zap.L().Info("memory: ingested document",
		zap.String("source", source),
		zap.String("type", docType),
		zap.Int("chunks", len(ids)),
		zap.Bool("used_ocr", usedOCR),
	)
	return &model.IngestResult{
		File:       source,
		DocType:    docType,
		Chunks:     len(ids),
		Characters: total,
		UsedOCR:    usedOCR,
	}, nil
}

// BreakerStates reports the circuit state for each external service.
func (s *Service) BreakerStates() map[string]resilience.CircuitState {
	return s.breakers.States()
}
