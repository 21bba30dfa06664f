package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/synapse/internal/engine"
	"github.com/user/synapse/internal/rag"
	"github.com/user/synapse/internal/store"
	"github.com/user/synapse/internal/tools"
	"github.com/user/synapse/internal/types"
	"github.com/user/synapse/pkg/llm"
	"github.com/user/synapse/pkg/llm/openai"
)

var (
	chatThread   string
	chatDocument string
)

func init() {
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "thread ID to continue (default: new thread)")
	chatCmd.Flags().StringVar(&chatDocument, "document", "", "path to a PDF or DOCX to attach")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Run a single turn against a thread and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	threads, err := store.Open(filepath.Join(cfg.DataDir, "threads.db"))
	if err != nil {
		return fmt.Errorf("open thread store: %w", err)
	}
	defer threads.Close()

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

	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	registry := engine.NewRegistry()
	registry.Register(tools.NewDocumentRetrieval(retriever))
	registry.Register(tools.NewWebSearch())
	if cfg.AlphaVantage.APIKey != "" {
		registry.Register(tools.NewStockQuote(cfg.AlphaVantage.APIKey))
	}
	if cfg.Students.CSVPath != "" {
		registry.Register(tools.NewStudentLookup(cfg.Students.CSVPath))
	}

	eng := engine.New(provider, threads, registry,
		cfg.MaxToolRounds, time.Duration(cfg.ModelTimeoutSec)*time.Second)

	threadID := types.ThreadID(chatThread)
	if threadID == "" {
		threadID = types.NewThreadID()
		fmt.Printf("Thread: %s\n", threadID)
	}

	answer, err := eng.RunTurn(context.Background(), threadID, strings.Join(args, " "), chatDocument)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}
