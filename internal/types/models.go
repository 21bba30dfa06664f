package types

import (
	"encoding/json"
	"time"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request emitted by the model asking for a named
// tool to be executed with the given arguments.
type ToolCall struct {
	ID        CallID          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a thread's ordered history. Assistant messages may
// carry tool calls (and then Content may be empty); tool messages carry the
// call identifier they answer and the name of the tool that produced them.
// ToolName is the tagged marker used to recognise retrieval results -- state
// is never inferred by matching on message text.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID CallID     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	At         time.Time  `json:"at"`
}

// Thread holds per-conversation metadata. DocGuidanceIssued records that the
// document guidance message has been added to the thread's history, so
// re-entering the same turn state never injects it twice.
type Thread struct {
	ID                ThreadID  `json:"id"`
	Title             string    `json:"title"`
	DocumentPath      string    `json:"document_path,omitempty"`
	DocGuidanceIssued bool      `json:"doc_guidance_issued"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
