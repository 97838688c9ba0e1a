// Package rag answers questions over stored memories: retrieve, ground the
// model in the retrieved context, write back new facts, and cache the result.
package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/analytics"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/cost"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/resilience"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/sanitize"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/store"
)

const (
	defaultTopK = 5

	// Query words found in the retrieved context, as a fraction of the
	// query, above which the model is held strictly to the context.
	relevanceThreshold = 0.5

	systemStrict = "You ground answers ONLY in CONTEXT. If insufficient, say you don't know. " +
		"After your answer, list any new atomic facts on their own lines as 'FACT: ...'."

	systemHybrid = "You are a helpful assistant. First, check if the provided CONTEXT contains " +
		"relevant information. If it does, prioritize that information in your answer. If the " +
		"context is not relevant or insufficient, you may use your general knowledge. Always " +
		"indicate whether you're using the provided context or your general knowledge."

	systemFallback = "You are a helpful assistant. No relevant context was found in the " +
		"database for this question. Please answer using your general knowledge, and mention " +
		"that this is from your training data."
)

// Retriever returns the memories most relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]model.Memory, error)
}

// NoteWriter persists fact writebacks.
type NoteWriter interface {
	UpsertNote(ctx context.Context, text string, meta map[string]any) (string, error)
}

// Chain is the question answering pipeline.
type Chain struct {
	cfg       *config.Config
	chat      ChatModel
	retriever Retriever
	notes     NoteWriter
	store     store.Store
	recorder  *analytics.Recorder
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	costCalc  *cost.Calculator
}

// NewChain assembles the answer chain.
func NewChain(
	cfg *config.Config,
	chat ChatModel,
	retriever Retriever,
	notes NoteWriter,
	st store.Store,
	rec *analytics.Recorder,
) *Chain {
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	return &Chain{
		cfg:       cfg,
		chat:      chat,
		retriever: retriever,
		notes:     notes,
		store:     st,
		recorder:  rec,
		breaker:   breakers.Get(chat.Service()),
		retry:     resilience.DefaultRetryConfig(),
		costCalc:  cost.NewCalculator(cost.DefaultRates()),
	}
}

// Answer runs one question through retrieval, the model, and fact writeback.
func (c *Chain) Answer(ctx context.Context, query string, k int) (*model.Answer, error) {
	start := time.Now()
	// Sanitization strips quotes; retrieval sees the raw query so quoted
	// phrases still reach the exact-match strategy.
	raw := strings.TrimSpace(query)
	query = sanitize.Query(query)
	if query == "" {
		return nil, eris.New("rag: query is empty after sanitization")
	}
	if k < 1 {
		k = defaultTopK
	}

	if ans := c.cachedAnswer(ctx, query, k); ans != nil {
		ans.LatencyMillis = time.Since(start).Milliseconds()
		c.record(ctx, query, ans, "")
		return ans, nil
	}

	hits, err := c.retriever.Search(ctx, raw, k)
	if err != nil {
		// Retrieval failure degrades to the model's own knowledge.
		zap.L().Warn("rag: retrieval failed", zap.Error(err))
		hits = nil
	}

	system, user, source := c.buildPrompt(query, hits)
	comp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Completion, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*Completion, error) {
			return c.chat.Complete(ctx, system, user)
		})
	})
	if err != nil {
		c.record(ctx, query, &model.Answer{
			Source:        source,
			LatencyMillis: time.Since(start).Milliseconds(),
		}, err.Error())
		return nil, eris.Wrap(err, "rag: chat completion")
	}

	ans := &model.Answer{
		Text:          comp.Text,
		Sources:       hits,
		Source:        source,
		LatencyMillis: time.Since(start).Milliseconds(),
		InputTokens:   comp.InputTokens,
		OutputTokens:  comp.OutputTokens,
		CostUSD:       c.costCalc.Chat(comp.Model, comp.InputTokens, comp.OutputTokens),
	}
	ans.NewFacts = c.writeBackFacts(ctx, comp.Text, hits)

	c.cacheAnswer(ctx, query, k, ans)
	c.record(ctx, query, ans, "")
	return ans, nil
}

// buildPrompt selects the prompt pair and answer source for the hits found.
func (c *Chain) buildPrompt(query string, hits []model.Memory) (system, user string, source model.AnswerSource) {
	if len(hits) == 0 {
		return systemFallback, query, model.SourceLLMKnowledge
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	ctxBlock := strings.Join(texts, "\n\n")

	if contextRelevance(query, ctxBlock) > relevanceThreshold {
		user = "CONTEXT:\n" + ctxBlock + "\n\nQUESTION: " + query +
			"\nReply first. Then list new facts as 'FACT: ...' on separate lines."
		return systemStrict, user, model.SourceContext
	}

	user = "CONTEXT (from database):\n" + ctxBlock + "\n\nQUESTION: " + query +
		"\n\nPlease answer the question. If the context is relevant, use it. Otherwise, use your knowledge."
	return systemHybrid, user, model.SourceHybrid
}

// dontKnowPhrases mark a response that declined to answer. A query whose
// retrieval found chunks but whose answer declined is a recall failure.
var dontKnowPhrases = []string{
	"i don't know",
	"i cannot answer",
	"no relevant information",
	"insufficient context",
	"not enough information",
	"cannot be determined",
	"no information provided",
	"context doesn't contain",
	"not mentioned in",
	"unable to answer",
}

func isDontKnow(response string) bool {
	lower := strings.ToLower(response)
	for _, p := range dontKnowPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// contextRelevance is the fraction of query words present in the context.
func contextRelevance(query, ctxBlock string) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	blob := strings.ToLower(ctxBlock)
	found := 0
	for _, w := range words {
		if strings.Contains(blob, w) {
			found++
		}
	}
	return float64(found) / float64(len(words))
}

// writeBackFacts stores FACT: lines the model emitted, skipping facts the
// retrieved context already contains.
func (c *Chain) writeBackFacts(ctx context.Context, response string, hits []model.Memory) []string {
	var blob strings.Builder
	for _, h := range hits {
		blob.WriteString(strings.ToLower(h.Text))
		blob.WriteString(" ")
	}

	var facts []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "FACT:") {
			continue
		}
		fact := strings.TrimSpace(line[len("FACT:"):])
		if fact == "" || strings.Contains(blob.String(), strings.ToLower(fact)) {
			continue
		}
		if _, err := c.notes.UpsertNote(ctx, fact, map[string]any{
			"type":   model.TypeFact,
			"source": "writeback",
		}); err != nil {
			zap.L().Warn("rag: fact writeback failed", zap.Error(err))
			continue
		}
		facts = append(facts, fact)
	}
	return facts
}

func (c *Chain) cacheKey(query string, k int) string {
	sum := md5.Sum([]byte(c.chat.Service() + "|" + query + "|" + strconv.Itoa(k)))
	return hex.EncodeToString(sum[:])
}

func (c *Chain) cachedAnswer(ctx context.Context, query string, k int) *model.Answer {
	if c.cfg.Cache.Disabled {
		return nil
	}
	data, err := c.store.GetCachedAnswer(ctx, c.cacheKey(query, k))
	if err != nil {
		zap.L().Warn("rag: cache read failed", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var ans model.Answer
	if err := json.Unmarshal(data, &ans); err != nil {
		zap.L().Warn("rag: cache entry corrupt", zap.Error(err))
		return nil
	}
	ans.Cached = true
	return &ans
}

func (c *Chain) cacheAnswer(ctx context.Context, query string, k int, ans *model.Answer) {
	if c.cfg.Cache.Disabled {
		return
	}
	ttl := time.Duration(c.cfg.Cache.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	data, err := json.Marshal(ans)
	if err != nil {
		return
	}
	if err := c.store.SetCachedAnswer(ctx, c.cacheKey(query, k), data, ttl); err != nil {
		zap.L().Warn("rag: cache write failed", zap.Error(err))
		return
	}
	// Expired rows are filtered at read time; purge them on write so the
	// table does not grow without bound.
	if _, err := c.store.DeleteExpiredAnswers(ctx); err != nil {
		zap.L().Warn("rag: cache purge failed", zap.Error(err))
	}
}

func (c *Chain) record(ctx context.Context, query string, ans *model.Answer, errMsg string) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(ctx, model.QueryRecord{
		Query:         query,
		RecallSuccess: len(ans.Sources) > 0 && !isDontKnow(ans.Text),
		LatencyMillis: ans.LatencyMillis,
		ResultsCount:  len(ans.Sources),
		Source:        ans.Source,
		Error:         errMsg,
	})
}
