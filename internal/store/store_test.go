package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/user/synapse/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "synapse.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadEmptyThread(t *testing.T) {
	s := openTestStore(t)
	history, err := s.Load(context.Background(), types.NewThreadID())
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d messages", len(history))
	}
}

func TestCheckpointThenLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	history := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi!"},
	}
	if err := s.Checkpoint(ctx, id, history); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0].Role != types.RoleUser || loaded[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", loaded[0])
	}
	if loaded[1].Role != types.RoleAssistant || loaded[1].Content != "hi!" {
		t.Errorf("unexpected second message: %+v", loaded[1])
	}
}

func TestCheckpointAppendsSuffixOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	history := []types.Message{{Role: types.RoleUser, Content: "one"}}
	if err := s.Checkpoint(ctx, id, history); err != nil {
		t.Fatal(err)
	}

	history = append(history,
		types.Message{Role: types.RoleAssistant, Content: "two"},
		types.Message{Role: types.RoleUser, Content: "three"},
	)
	if err := s.Checkpoint(ctx, id, history); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"one", "two", "three"}
	if len(loaded) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(loaded))
	}
	for i, w := range want {
		if loaded[i].Content != w {
			t.Errorf("message %d: expected %q, got %q", i, w, loaded[i].Content)
		}
	}
}

func TestCheckpointRejectsTruncation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	history := []types.Message{
		{Role: types.RoleUser, Content: "one"},
		{Role: types.RoleAssistant, Content: "two"},
	}
	if err := s.Checkpoint(ctx, id, history); err != nil {
		t.Fatal(err)
	}

	if err := s.Checkpoint(ctx, id, history[:1]); err == nil {
		t.Fatal("expected error for a history shorter than what is stored")
	}

	loaded, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Errorf("stored history changed: got %d messages", len(loaded))
	}
}

func TestToolCallsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	callID := types.NewCallID()
	history := []types.Message{
		{Role: types.RoleUser, Content: "price of AAPL?"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: callID, Name: "get_stock_price", Arguments: []byte(`{"symbol":"AAPL"}`)},
		}},
		{Role: types.RoleTool, Content: "190.12", ToolCallID: callID, ToolName: "get_stock_price"},
	}
	if err := s.Checkpoint(ctx, id, history); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded))
	}
	if len(loaded[1].ToolCalls) != 1 || loaded[1].ToolCalls[0].Name != "get_stock_price" {
		t.Errorf("tool calls not preserved: %+v", loaded[1])
	}
	if loaded[2].ToolCallID != callID || loaded[2].ToolName != "get_stock_price" {
		t.Errorf("tool result back-reference not preserved: %+v", loaded[2])
	}
}

func TestSetTitleFirstWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	if err := s.SetTitle(ctx, id, "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTitle(ctx, id, "second"); err != nil {
		t.Fatal(err)
	}

	threads, err := s.ListThreads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if threads[id] != "first" {
		t.Errorf("expected title %q, got %q", "first", threads[id])
	}
}

func TestAttachedDocumentAndGuidanceFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := types.NewThreadID()

	th, err := s.Thread(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if th.DocumentPath != "" || th.DocGuidanceIssued {
		t.Errorf("expected zero-value metadata, got %+v", th)
	}

	if err := s.SetAttachedDocument(ctx, id, "/tmp/report.pdf"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDocGuidanceIssued(ctx, id); err != nil {
		t.Fatal(err)
	}

	th, err = s.Thread(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if th.DocumentPath != "/tmp/report.pdf" {
		t.Errorf("unexpected document path: %s", th.DocumentPath)
	}
	if !th.DocGuidanceIssued {
		t.Error("expected guidance flag set")
	}
}

func TestConcurrentThreadsDoNotInterleave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, b := types.NewThreadID(), types.NewThreadID()
	const turns = 20

	var wg sync.WaitGroup
	for _, id := range []types.ThreadID{a, b} {
		wg.Add(1)
		go func(id types.ThreadID) {
			defer wg.Done()
			var history []types.Message
			for i := 0; i < turns; i++ {
				history = append(history, types.Message{
					Role:    types.RoleUser,
					Content: fmt.Sprintf("%s-%d", id, i),
				})
				if err := s.Checkpoint(ctx, id, history); err != nil {
					t.Errorf("checkpoint %s: %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []types.ThreadID{a, b} {
		loaded, err := s.Load(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(loaded) != turns {
			t.Fatalf("thread %s: expected %d messages, got %d", id, turns, len(loaded))
		}
		for i, msg := range loaded {
			want := fmt.Sprintf("%s-%d", id, i)
			if msg.Content != want {
				t.Errorf("thread %s message %d: expected %q, got %q", id, i, want, msg.Content)
			}
		}
	}
}
