package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/synapse/internal/engine"
	"github.com/user/synapse/internal/gateway"
	"github.com/user/synapse/internal/rag"
	"github.com/user/synapse/internal/scheduler"
	"github.com/user/synapse/internal/server"
	"github.com/user/synapse/internal/store"
	"github.com/user/synapse/internal/tools"
	"github.com/user/synapse/internal/types"
	"github.com/user/synapse/pkg/llm"
	"github.com/user/synapse/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the synapse daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "synapse.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Thread store
	threads, err := store.Open(filepath.Join(cfg.DataDir, "threads.db"))
	if err != nil {
		return fmt.Errorf("open thread store: %w", err)
	}
	defer threads.Close()

	// Document index
	index, err := rag.OpenIndex(filepath.Join(cfg.DataDir, "index.db"))
	if err != nil {
		return fmt.Errorf("open document index: %w", err)
	}
	defer index.Close()

	splitter, err := rag.NewSplitter(cfg.Retrieval.ChunkTokens, cfg.Retrieval.OverlapTokens)
	if err != nil {
		return fmt.Errorf("create splitter: %w", err)
	}
	embedder := rag.NewOpenAIEmbedder(cfg.Embedding.APIKey,
		rag.WithEmbedderBaseURL(cfg.Embedding.BaseURL),
		rag.WithEmbedderModel(cfg.Embedding.Model),
	)
	cache := rag.NewCache(index, embedder, splitter)
	retriever := rag.NewRetriever(cache, index, embedder, rag.RetrieverConfig{
		SpecificK:     cfg.Retrieval.SpecificK,
		OverviewK:     cfg.Retrieval.OverviewK,
		CandidatePool: cfg.Retrieval.CandidatePool,
		Diversity:     cfg.Retrieval.Diversity,
	})

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	// Tool registry
	registry := engine.NewRegistry()
	registry.Register(tools.NewDocumentRetrieval(retriever))
	registry.Register(tools.NewWebSearch())
	if cfg.AlphaVantage.APIKey != "" {
		registry.Register(tools.NewStockQuote(cfg.AlphaVantage.APIKey))
	} else {
		slog.Warn("stock quote tool disabled (no Alpha Vantage key)")
	}
	if cfg.Students.CSVPath != "" {
		registry.Register(tools.NewStudentLookup(cfg.Students.CSVPath))
	}

	// Turn engine
	eng := engine.New(provider, threads, registry,
		cfg.MaxToolRounds, time.Duration(cfg.ModelTimeoutSec)*time.Second)

	// Gateway
	gw := gateway.New(eng, cfg.MaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("synapse started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_model", cfg.LLM.Model,
		"embedding_model", cfg.Embedding.Model,
		"tools", len(registry.All()),
		"pid_file", pidPath,
	)

	// Maintenance scheduler
	sched := scheduler.New(cfg.MaintenanceSchedule,
		scheduler.Job{Name: "store-maintain", Run: threads.Maintain},
		scheduler.Job{Name: "index-stats", Run: func(ctx context.Context) error {
			docs, passages, err := index.Stats(ctx)
			if err != nil {
				return err
			}
			slog.Info("document index", "documents", docs, "passages", passages)
			return nil
		}},
	)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP API
	turnHandler := func(r *http.Request, threadID types.ThreadID, text, document string) (string, error) {
		var opts []gateway.RunOption
		if document != "" {
			opts = append(opts, gateway.WithDocument(document))
		}
		return gw.SubmitWait(r.Context(), threadID, text, opts...)
	}
	srv := server.NewServer(threads, turnHandler, filepath.Join(cfg.DataDir, "uploads"))
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv,
	}
	go func() {
		slog.Info("http server started", "listen", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	return nil
}
