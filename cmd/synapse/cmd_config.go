package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		// Secrets stay out of terminal output.
		cfg.LLM.APIKey = redact(cfg.LLM.APIKey)
		cfg.Embedding.APIKey = redact(cfg.Embedding.APIKey)
		cfg.AlphaVantage.APIKey = redact(cfg.AlphaVantage.APIKey)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
