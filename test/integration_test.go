//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/synapse/internal/engine"
	"github.com/user/synapse/internal/gateway"
	"github.com/user/synapse/internal/store"
	"github.com/user/synapse/internal/types"
	"github.com/user/synapse/pkg/llm"
)

// scriptedProvider answers every prompt with a fixed text response after a
// short delay, standing in for a real model.
type scriptedProvider struct{}

func (scriptedProvider) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	time.Sleep(10 * time.Millisecond)
	last := messages[len(messages)-1]
	return &llm.Response{Content: "ack: " + last.Content}, nil
}

// echoTool reflects its arguments, used to exercise the tool round trip.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echo arguments back" }
func (echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (echoTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()

	threads, err := store.Open(filepath.Join(dir, "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer threads.Close()

	registry := engine.NewRegistry()
	registry.Register(echoTool{})
	eng := engine.New(scriptedProvider{}, threads, registry, 5, 0)

	gw := gateway.New(eng, 2)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	// Multiple turns on one thread must land in order.
	threadID := types.NewThreadID()
	for i := 0; i < 3; i++ {
		answer, err := gw.SubmitWait(ctx, threadID, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatal(err)
		}
		if answer != fmt.Sprintf("ack: message %d", i) {
			t.Errorf("unexpected answer: %q", answer)
		}
	}

	history, err := threads.Load(ctx, threadID)
	if err != nil {
		t.Fatal(err)
	}
	// 3 user messages and 3 assistant answers.
	if len(history) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(history))
	}
	for i := 0; i < 3; i++ {
		if history[2*i].Role != types.RoleUser {
			t.Errorf("position %d: expected user, got %s", 2*i, history[2*i].Role)
		}
		if history[2*i].Content != fmt.Sprintf("message %d", i) {
			t.Errorf("position %d: out of order: %q", 2*i, history[2*i].Content)
		}
		if history[2*i+1].Role != types.RoleAssistant {
			t.Errorf("position %d: expected assistant, got %s", 2*i+1, history[2*i+1].Role)
		}
	}

	// The store must survive reopening.
	if err := threads.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := store.Open(filepath.Join(dir, "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	again, err := reopened.Load(ctx, threadID)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(history) {
		t.Fatalf("history lost across reopen: %d != %d", len(again), len(history))
	}
}
