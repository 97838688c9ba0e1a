package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/analytics"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/extract"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/memory"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/rag"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/ratelimit"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/search"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/store"
	anthropicpkg "github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/anthropic"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/openai"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/pinecone"
)

// appEnv holds all initialized clients and services the commands share.
type appEnv struct {
	Store    store.Store
	Memory   *memory.Service
	Hybrid   *search.Hybrid
	Chain    *rag.Chain
	Recorder *analytics.Recorder
	Limits   *ratelimit.Registry
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates configuration, opens the local store, builds the API
// clients, and assembles the memory service and answer chain. Callers should
// defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.New(config.SetupInstructions(errs))
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	oaClient := openai.NewClient(cfg.OpenAI.Key,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithEmbedModel(cfg.OpenAI.EmbedModel),
		openai.WithChatModel(cfg.OpenAI.ChatModel),
	)
	pcClient := pinecone.NewClient(cfg.Pinecone.Key, pinecone.WithBaseURL(cfg.Pinecone.BaseURL))

	keyword := search.NewKeywordIndex()
	mem := memory.New(cfg, oaClient, pcClient, st, keyword, extract.New(cfg.Extract))

	if err := mem.EnsureIndex(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "ensure vector index")
	}
	if _, err := mem.RebuildKeywordIndex(ctx); err != nil {
		zap.L().Warn("keyword index rebuild failed", zap.Error(err))
	}

	var chat rag.ChatModel
	if cfg.LLM.Provider == "anthropic" {
		chat = rag.NewAnthropicChat(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	} else {
		chat = rag.NewOpenAIChat(oaClient, cfg.OpenAI.ChatModel)
	}

	hybrid := search.NewHybrid(mem, keyword)
	recorder := analytics.NewRecorder(st)
	chain := rag.NewChain(cfg, chat, hybrid, mem, st, recorder)

	return &appEnv{
		Store:    st,
		Memory:   mem,
		Hybrid:   hybrid,
		Chain:    chain,
		Recorder: recorder,
		Limits:   ratelimit.NewRegistry(cfg.Limits),
	}, nil
}

// initStore opens the configured local database driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		return st, nil
	default:
		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		return st, nil
	}
}
