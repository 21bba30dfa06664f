package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/synapse/internal/store"
	"github.com/user/synapse/internal/types"
)

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadListCmd, threadShowCmd)
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage conversation threads",
}

var threadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		threads, err := store.Open(filepath.Join(cfg.DataDir, "threads.db"))
		if err != nil {
			return fmt.Errorf("open thread store: %w", err)
		}
		defer threads.Close()

		list, err := threads.ListThreads(context.Background())
		if err != nil {
			return fmt.Errorf("list threads: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No threads found.")
			return nil
		}

		ids := make([]types.ThreadID, 0, len(list))
		for id := range list {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE")
		for _, id := range ids {
			title := list[id]
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(w, "%s\t%s\n", id, title)
		}
		return w.Flush()
	},
}

var threadShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print a thread's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		threads, err := store.Open(filepath.Join(cfg.DataDir, "threads.db"))
		if err != nil {
			return fmt.Errorf("open thread store: %w", err)
		}
		defer threads.Close()

		history, err := threads.Load(context.Background(), types.ThreadID(args[0]))
		if err != nil {
			return fmt.Errorf("load thread: %w", err)
		}
		if len(history) == 0 {
			fmt.Println("Thread is empty.")
			return nil
		}

		for _, msg := range history {
			if msg.Role == types.RoleTool {
				continue
			}
			if msg.Role == types.RoleAssistant && msg.Content == "" {
				continue
			}
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
		return nil
	},
}
