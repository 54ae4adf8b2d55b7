package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/audit"
	"github.com/calyx-ai/retrieval/internal/config"
	"github.com/calyx-ai/retrieval/internal/db"
	dbRedis "github.com/calyx-ai/retrieval/internal/db/redis"
	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/expand"
	qdrantIdx "github.com/calyx-ai/retrieval/internal/index/qdrant"
	logpkg "github.com/calyx-ai/retrieval/internal/logger"
	"github.com/calyx-ai/retrieval/internal/metrics"
	"github.com/calyx-ai/retrieval/internal/pool"
	"github.com/calyx-ai/retrieval/internal/repository/embcache"
	"github.com/calyx-ai/retrieval/internal/rerank"
	chiTransport "github.com/calyx-ai/retrieval/internal/transport/chi"
	openaiEmb "github.com/calyx-ai/retrieval/internal/transport/openai"
	embeddinguc "github.com/calyx-ai/retrieval/internal/usecase/embedding"
	healthuc "github.com/calyx-ai/retrieval/internal/usecase/health"
	retrievaluc "github.com/calyx-ai/retrieval/internal/usecase/retrieval"
	"github.com/calyx-ai/retrieval/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrieval API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_host", cfg.Index.Host),
		zap.String("collection", cfg.Index.Collection),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := context.Background()

	// Embedding cache store (optional)
	var store db.Store
	if cfg.Cache.Enabled {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()
		logger.Info("Embedding cache connected", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Embedder chain: OpenAI -> Cached -> Lazy. The base client doubles as
	// the provider health check for /health.
	embedder, embeddingChecker := buildEmbedder(cfg, store, logger)

	// Index connection pool
	factory := qdrantIdx.Factory(qdrantIdx.Config{
		Host:   cfg.Index.Host,
		Port:   cfg.Index.Port,
		APIKey: cfg.Index.APIKey,
		UseTLS: cfg.Index.UseTLS,
	})
	searchPool := pool.New(ctx, factory,
		pool.Config{
			MinConns:           cfg.Pool.MinConns,
			MaxConns:           cfg.Pool.MaxConns,
			AcquireTimeout:     time.Duration(cfg.Pool.AcquireTimeoutMs) * time.Millisecond,
			HealthCheckTimeout: time.Duration(cfg.Pool.HealthCheckTimeoutMs) * time.Millisecond,
			SearchTimeout:      time.Duration(cfg.Pool.SearchTimeoutMs) * time.Millisecond,
		},
		pool.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		},
		pool.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         time.Duration(cfg.Breaker.CooldownSec) * time.Second,
		},
		logger,
	)
	defer searchPool.Close()

	expander := expand.New(expand.Strategy(cfg.Expansion.Strategy), nil)

	// Pass nil interface (not typed nil pointer!) if reranking is not configured.
	// Go gotcha: (*rerank.Client)(nil) wrapped in the interface != nil.
	var reranker retrievaluc.Reranker
	if cfg.Rerank.BaseURL != "" {
		reranker = rerank.New(rerank.Config{
			BaseURL: cfg.Rerank.BaseURL,
			APIKey:  cfg.Rerank.APIKey,
			Model:   cfg.Rerank.Model,
			Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
		}, logger)
		logger.Info("Reranker enabled", zap.String("model", cfg.Rerank.Model))
	}

	sink := audit.NewSink(logger, cfg.Audit.Buffer)
	defer sink.Close()

	retrievalSvc := retrievaluc.New(
		embedder, searchPool, expander, reranker, sink,
		retrievaluc.Config{
			Collection:     cfg.Index.Collection,
			SemanticWeight: cfg.Retrieval.SemanticWeight,
			LexicalWeight:  cfg.Retrieval.LexicalWeight,
			TopKPerVariant: cfg.Retrieval.TopKPerVariant,
			MaxVariants:    cfg.Expansion.MaxVariants,
			FanOutLimit:    cfg.Retrieval.FanOutLimit,
			QueryTimeout:   time.Duration(cfg.Retrieval.QueryTimeoutSec) * time.Second,
			RerankTopK:     cfg.Rerank.TopK,
			RerankFinalK:   cfg.Rerank.FinalK,
		},
		logger,
	)

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(searchPool, cachePinger, embeddingChecker)

	server := chiTransport.NewServer(retrievalSvc, healthSvc, chiTransport.Defaults{
		Expand: cfg.Expansion.Strategy != "none",
		Rerank: reranker != nil,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain (OpenAI -> Cached -> Lazy) and
// returns the base client a second time as the provider health check.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) (domain.Embedder, healthuc.EmbeddingChecker) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, time.Duration(cfg.Cache.TTLSec)*time.Second, logger)
	}

	// Lazy outermost: the provider is probed on first use, not at startup.
	return embeddinguc.NewLazy(embedder, base, logger), base
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
