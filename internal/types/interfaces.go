package types

import "context"

// ThreadStore persists conversation threads: an append-only ordered message
// history per thread plus thread metadata. Implementations must guarantee
// that a Load after a successful Checkpoint on the same thread returns at
// least everything that was checkpointed, and must never reorder or drop a
// previously checkpointed message. Unknown threads load as empty, not as an
// error.
//
// The store is injected with an explicit lifecycle (opened at startup,
// closed at shutdown) rather than held as process-wide shared state.
type ThreadStore interface {
	Load(ctx context.Context, id ThreadID) ([]Message, error)
	Checkpoint(ctx context.Context, id ThreadID, history []Message) error

	ListThreads(ctx context.Context) (map[ThreadID]string, error)
	// SetTitle records the thread title. The first write wins; later calls
	// are no-ops.
	SetTitle(ctx context.Context, id ThreadID, title string) error

	Thread(ctx context.Context, id ThreadID) (*Thread, error)
	SetAttachedDocument(ctx context.Context, id ThreadID, path string) error
	MarkDocGuidanceIssued(ctx context.Context, id ThreadID) error

	Close() error
}
