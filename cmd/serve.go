package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/analytics"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/ratelimit"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/sanitize"
)

var servePort int

// memoryAPI is what the HTTP handlers need from the memory service.
type memoryAPI interface {
	IngestFile(ctx context.Context, path string) (*model.IngestResult, error)
	UpsertNote(ctx context.Context, text string, meta map[string]any) (string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (*model.IndexStats, error)
}

// answerAPI is what the ask handler needs from the answer chain.
type answerAPI interface {
	Answer(ctx context.Context, query string, k int) (*model.Answer, error)
}

// searchAPI is what the search handler needs from hybrid retrieval.
type searchAPI interface {
	Search(ctx context.Context, query string, k int) ([]model.Memory, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. Handlers take their dependencies from env
// so tests can substitute fakes.
func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(env.Limits.Get(ratelimit.OpSearch)))
		r.Post("/api/ask", handleAsk(env.Chain))
		r.Get("/api/search", handleSearch(env.Hybrid))
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(env.Limits.Get(ratelimit.OpUpload)))
		r.Post("/api/documents", handleUpload(env.Memory, cfg.Extract.MaxUploadMB))
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(env.Limits.Get(ratelimit.OpAPI)))
		r.Post("/api/notes", handleNote(env.Memory))
		r.Delete("/api/memories", handleDelete(env.Memory))
		r.Post("/api/memories/reset", handleReset(env.Memory))
		r.Get("/api/metrics", handleMetrics(env.Recorder))
		r.Get("/api/stats", handleStats(env.Memory))
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAsk(chain answerAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
			K        int    `json:"k"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		ans, err := chain.Answer(r.Context(), req.Question, req.K)
		if err != nil {
			zap.L().Error("ask failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "answer failed")
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

func handleSearch(hybrid searchAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		k, _ := strconv.Atoi(r.URL.Query().Get("k"))

		mems, err := hybrid.Search(r.Context(), query, k)
		if err != nil {
			zap.L().Error("search failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": mems, "count": len(mems)})
	}
}

func handleUpload(mem memoryAPI, maxUploadMB int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxUploadMB <= 0 {
			maxUploadMB = 50
		}
		maxBytes := int64(maxUploadMB) << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		name := sanitize.Filename(header.Filename)
		tmpDir, err := os.MkdirTemp("", "cca-upload-*")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, name)
		dst, err := os.Create(path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		dst.Close()

		res, err := mem.IngestFile(r.Context(), path)
		if err != nil {
			zap.L().Error("ingest failed", zap.String("file", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ingest failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleNote(mem memoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string         `json:"text"`
			Meta map[string]any `json:"meta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		id, err := mem.UpsertNote(r.Context(), req.Text, req.Meta)
		if err != nil {
			zap.L().Error("note failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "note failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

func handleDelete(mem memoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.IDs) == 0 {
			writeError(w, http.StatusBadRequest, "ids is required")
			return
		}

		n, err := mem.DeleteByIDs(r.Context(), req.IDs)
		if err != nil {
			zap.L().Error("delete failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

func handleReset(mem memoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mem.Reset(r.Context()); err != nil {
			zap.L().Error("reset failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "reset failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func handleMetrics(rec *analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, _ := strconv.Atoi(r.URL.Query().Get("days"))
		if days <= 0 {
			days = 7
		}

		m, err := rec.Metrics(r.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			zap.L().Error("metrics failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func handleStats(mem memoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := mem.Stats(r.Context())
		if err != nil {
			zap.L().Error("stats failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "stats failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
