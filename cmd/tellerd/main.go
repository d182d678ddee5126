package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/danghm/tellerbot/internal/config"
	"github.com/danghm/tellerbot/internal/engine"
	"github.com/danghm/tellerbot/internal/httpapi"
	"github.com/danghm/tellerbot/internal/intent"
	"github.com/danghm/tellerbot/internal/llm"
	"github.com/danghm/tellerbot/internal/observability"
	"github.com/danghm/tellerbot/internal/rates"
	"github.com/danghm/tellerbot/internal/retrieval"
	"github.com/danghm/tellerbot/internal/session"
	"github.com/danghm/tellerbot/internal/tools"
)

// searcherIndex is what both index backends provide.
type searcherIndex interface {
	retrieval.Searcher
	Add(ctx context.Context, partition string, doc retrieval.Document) error
}

func main() {
	// Local development keeps its settings in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	table, err := rates.LoadDir(cfg.DataDir)
	if err != nil {
		log.Fatalf("rate tables init failed: %v", err)
	}
	log.Printf("rate tables: %d savings products, %d loan products", len(table.Savings), len(table.Loans))

	var embedder retrieval.Embedder
	if cfg.EmbedURL != "" {
		embedder = llm.NewHTTPEmbedder(cfg.EmbedURL)
		log.Printf("embedder: http (%s)", cfg.EmbedURL)
	} else {
		embedder = retrieval.NewHashEmbedder(cfg.EmbeddingDim)
		log.Printf("embedder: local hash (dim %d)", cfg.EmbeddingDim)
	}

	ctx := context.Background()
	var index searcherIndex
	if cfg.DatabaseURL != "" {
		var opts []retrieval.PostgresOption
		if cfg.RetrieverDiversity {
			opts = append(opts, retrieval.WithDiversity(cfg.RetrieverFetchK))
		}
		pg, err := retrieval.NewPostgresIndex(ctx, cfg.DatabaseURL, embedder, cfg.EmbeddingDim, opts...)
		if err != nil {
			log.Fatalf("postgres index init failed: %v", err)
		}
		defer pg.Close()
		index = pg
		log.Printf("knowledge index: postgres")
	} else {
		mem := retrieval.NewInMemoryIndex(embedder)
		if n, err := seedIndex(ctx, mem, filepath.Join(cfg.DataDir, "kb_documents.json")); err != nil {
			log.Printf("knowledge seed skipped: %v", err)
		} else if n > 0 {
			log.Printf("knowledge index: in-memory, %d seeded documents", n)
		} else {
			log.Printf("knowledge index: in-memory, empty")
		}
		index = mem
	}

	router := retrieval.NewRouter(index, func(partition string, err error) {
		metrics.PartitionErrors.WithLabelValues(partition).Inc()
		log.Printf("retrieval partition %s failed: %v", partition, err)
	})

	adapter, err := llm.NewAdapter(llm.Config{Mode: cfg.LLMMode, URL: cfg.LLMURL})
	if err != nil {
		log.Fatalf("llm adapter init failed: %v", err)
	}

	var extractor intent.Extractor
	if cfg.LLMExtractURL != "" {
		extractor = llm.NewHTTPExtractor(cfg.LLMExtractURL)
		log.Printf("intent extractor: http (%s)", cfg.LLMExtractURL)
	} else {
		extractor = llm.NewMockExtractor()
		log.Printf("intent extractor: local rules")
	}
	classifier := intent.NewClassifier(nil, extractor)

	sessions := session.NewStore(cfg.SessionTTL, cfg.MaxHistory)
	sessions.SetEvictHook(func(string) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Dec()
	})

	toolset := []engine.Tool{
		tools.NewLoanCalculator(table),
		tools.NewSavingsCalculator(table),
		tools.NewMarketService(cfg.MarketFeedURL),
	}

	eng := engine.New(sessions, classifier, router, toolset, adapter, metrics, engine.Options{
		TopK: cfg.RetrieverTopK,
	})

	api := httpapi.New(cfg, sessions, eng, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

type seedDocument struct {
	Partition string            `json:"partition"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// seedIndex loads development knowledge chunks into an empty index. The
// file is optional.
func seedIndex(ctx context.Context, index searcherIndex, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var docs []seedDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return 0, err
	}
	for _, d := range docs {
		doc := retrieval.Document{Content: d.Content, Metadata: d.Metadata}
		if err := index.Add(ctx, d.Partition, doc); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}
