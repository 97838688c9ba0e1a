// Package store persists the local sidecar state: a mirror of every chunk
// upserted to the vector index (feeding keyword search and export), the LLM
// answer cache, and the query analytics log.
package store

import (
	"context"
	"time"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// ChunkFilter narrows ListChunks results.
type ChunkFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// QueryLogFilter narrows ListQueryLogs results.
type QueryLogFilter struct {
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the local database.
// The vector index remains the retrieval authority; everything here is
// derived state that can be rebuilt from it.
type Store interface {
	// Chunk mirror
	SaveChunks(ctx context.Context, chunks []model.ChunkRecord) error
	ListChunks(ctx context.Context, filter ChunkFilter) ([]model.ChunkRecord, error)
	DeleteChunks(ctx context.Context, memoryIDs []string) error
	DeleteAllChunks(ctx context.Context) error
	CountChunks(ctx context.Context) (int, error)

	// LLM answer cache
	GetCachedAnswer(ctx context.Context, key string) ([]byte, error)
	SetCachedAnswer(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredAnswers(ctx context.Context) (int, error)
	DeleteAllAnswers(ctx context.Context) error

	// Query analytics log
	AppendQueryLog(ctx context.Context, rec model.QueryRecord) error
	ListQueryLogs(ctx context.Context, filter QueryLogFilter) ([]model.QueryRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
