package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/synapse/internal/types"
)

type fakeProcessor struct {
	mu    sync.Mutex
	turns []string
	fail  bool
}

func (f *fakeProcessor) RunTurn(_ context.Context, threadID types.ThreadID, text, document string) (string, error) {
	f.mu.Lock()
	f.turns = append(f.turns, text)
	f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("model unavailable")
	}
	if document != "" {
		return "attached " + document, nil
	}
	return "echo: " + text, nil
}

func TestSubmitWaitReturnsAnswer(t *testing.T) {
	g := New(&fakeProcessor{}, 2)
	g.Start(context.Background())
	defer g.Stop()

	answer, err := g.SubmitWait(context.Background(), types.NewThreadID(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "echo: hello" {
		t.Errorf("unexpected answer: %q", answer)
	}
}

func TestSubmitWaitPropagatesDocument(t *testing.T) {
	g := New(&fakeProcessor{}, 2)
	g.Start(context.Background())
	defer g.Stop()

	answer, err := g.SubmitWait(context.Background(), types.NewThreadID(), "summarize",
		WithDocument("/data/uploads/report.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if answer != "attached /data/uploads/report.pdf" {
		t.Errorf("unexpected answer: %q", answer)
	}
}

func TestSubmitWaitSurfacesTurnError(t *testing.T) {
	g := New(&fakeProcessor{fail: true}, 2)
	g.Start(context.Background())
	defer g.Stop()

	if _, err := g.SubmitWait(context.Background(), types.NewThreadID(), "hello"); err == nil {
		t.Fatal("expected error from failed turn")
	}
}

func TestSubmitWaitRespectsCallerContext(t *testing.T) {
	slow := &fakeProcessor{}
	g := New(blockingProcessor{slow}, 1)
	g.Start(context.Background())
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := g.SubmitWait(ctx, types.NewThreadID(), "hello"); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

type blockingProcessor struct {
	inner *fakeProcessor
}

func (b blockingProcessor) RunTurn(ctx context.Context, threadID types.ThreadID, text, document string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Second):
	}
	return b.inner.RunTurn(ctx, threadID, text, document)
}
