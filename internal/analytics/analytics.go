// Package analytics records query executions and summarizes search quality:
// recall rate, latency percentiles, and where answers were grounded.
package analytics

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/store"
)

// QueryCount pairs a query with how often it appeared.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Metrics summarizes query executions over a window.
type Metrics struct {
	TotalQueries    int            `json:"total_queries"`
	UniqueQueries   int            `json:"unique_queries"`
	RecallRate      float64        `json:"recall_rate"`
	ErrorRate       float64        `json:"error_rate"`
	AvgLatencyMs    float64        `json:"avg_latency_ms"`
	MedianLatencyMs float64        `json:"median_latency_ms"`
	P95LatencyMs    float64        `json:"p95_latency_ms"`
	P99LatencyMs    float64        `json:"p99_latency_ms"`
	AvgResults      float64        `json:"avg_results"`
	Sources         map[string]int `json:"sources"`
	TopQueries      []QueryCount   `json:"top_queries"`
	FailurePatterns []QueryCount   `json:"failure_patterns"`
}

// Recorder logs query executions to the store and computes metrics from them.
type Recorder struct {
	store store.Store
}

// NewRecorder wraps a store for analytics use.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record appends one query execution. Logging failures are reported, never
// propagated; analytics must not break the query path.
func (r *Recorder) Record(ctx context.Context, rec model.QueryRecord) {
	if err := r.store.AppendQueryLog(ctx, rec); err != nil {
		zap.L().Warn("analytics: append query log failed", zap.Error(err))
	}
}

// Metrics computes the summary for all queries within the past window.
func (r *Recorder) Metrics(ctx context.Context, window time.Duration) (*Metrics, error) {
	filter := store.QueryLogFilter{}
	if window > 0 {
		filter.Since = time.Now().Add(-window)
	}
	logs, err := r.store.ListQueryLogs(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: list query logs")
	}
	return Summarize(logs), nil
}

// Summarize computes metrics over a slice of query records.
func Summarize(logs []model.QueryRecord) *Metrics {
	m := &Metrics{Sources: map[string]int{}}
	if len(logs) == 0 {
		return m
	}

	m.TotalQueries = len(logs)

	latencies := make([]float64, 0, len(logs))
	seen := map[string]int{}
	failures := map[string]int{}
	successes, errors := 0, 0
	var totalResults int

	for _, l := range logs {
		latencies = append(latencies, float64(l.LatencyMillis))
		totalResults += l.ResultsCount
		q := strings.ToLower(l.Query)
		seen[q]++
		if l.RecallSuccess {
			successes++
		} else {
			failures[q]++
		}
		if l.Error != "" {
			errors++
		}
		m.Sources[string(l.Source)]++
	}

	m.UniqueQueries = len(seen)
	m.RecallRate = 100 * float64(successes) / float64(len(logs))
	m.ErrorRate = 100 * float64(errors) / float64(len(logs))
	m.AvgResults = float64(totalResults) / float64(len(logs))

	sort.Float64s(latencies)
	m.AvgLatencyMs = mean(latencies)
	m.MedianLatencyMs = percentile(latencies, 0.50)
	m.P95LatencyMs = percentile(latencies, 0.95)
	m.P99LatencyMs = percentile(latencies, 0.99)

	m.TopQueries = topCounts(seen, 10)
	m.FailurePatterns = topCounts(failures, 5)
	return m
}

func mean(sorted []float64) float64 {
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topCounts(counts map[string]int, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
