package model

import "time"

// AnswerSource classifies where an answer was grounded.
type AnswerSource string

const (
	// SourceContext means the answer was grounded in retrieved memories.
	SourceContext AnswerSource = "context"
	// SourceLLMKnowledge means retrieval found nothing useful and the model
	// answered (or declined) from its own knowledge.
	SourceLLMKnowledge AnswerSource = "llm_knowledge"
	// SourceHybrid means both retrieval paths contributed.
	SourceHybrid AnswerSource = "hybrid"
)

// Answer is the result of one question through the RAG chain.
type Answer struct {
	Text          string       `json:"text"`
	Sources       []Memory     `json:"sources,omitempty"`
	Source        AnswerSource `json:"source"`
	NewFacts      []string     `json:"new_facts,omitempty"`
	Cached        bool         `json:"cached"`
	LatencyMillis int64        `json:"latency_ms"`
	InputTokens   int          `json:"input_tokens,omitempty"`
	OutputTokens  int          `json:"output_tokens,omitempty"`
	CostUSD       float64      `json:"cost_usd,omitempty"`
}

// QueryRecord is a single analytics log entry for a query execution.
type QueryRecord struct {
	ID            string       `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	Query         string       `json:"query"`
	RecallSuccess bool         `json:"recall_success"`
	LatencyMillis int64        `json:"latency_ms"`
	ResultsCount  int          `json:"results_count"`
	Source        AnswerSource `json:"source"`
	Error         string       `json:"error,omitempty"`
	ClientKey     string       `json:"client_key,omitempty"`
}
