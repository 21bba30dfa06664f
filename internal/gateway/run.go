package gateway

import (
	"context"
	"time"

	"github.com/user/synapse/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks a single user turn queued against a thread.
type Run struct {
	ID       types.RunID
	ThreadID types.ThreadID
	// Text is the user's message for this turn.
	Text string
	// Document, when non-empty, is the path of a document to attach to the
	// thread before the turn executes.
	Document string

	Status     RunStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error
	Ctx        context.Context
	OnComplete func(response string)
	OnError    func(err error)
}

// NewRun creates a Run in the Queued state for the given thread.
func NewRun(threadID types.ThreadID, text string) *Run {
	return &Run{
		ID:        types.NewRunID(),
		ThreadID:  threadID,
		Text:      text,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}
