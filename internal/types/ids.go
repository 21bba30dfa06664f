package types

import "github.com/google/uuid"

type ThreadID string
type CallID string
type DocumentID string
type RunID string

func NewThreadID() ThreadID {
	return ThreadID(uuid.New().String())
}

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
