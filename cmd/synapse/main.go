package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/synapse/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Synapse is a conversational document assistant",
	Long: "Synapse is a conversational agent with persistent threads, a document\n" +
		"retrieval index, and a small set of built-in tools (web search, stock\n" +
		"quotes, student lookup).",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".synapse", "config.json"),
		"config file path")
}

// loadConfig loads the config file, exiting on failure. Environment
// variables from a local .env file are applied first so they take effect
// as config overrides.
func loadConfig() *config.Config {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
