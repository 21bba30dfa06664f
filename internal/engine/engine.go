// Package engine implements the turn-taking orchestration loop between the
// language model and the tool registry.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/synapse/internal/types"
	"github.com/user/synapse/pkg/llm"
)

const maxTitleLen = 60

// Engine drives a single conversation turn: it alternates between invoking
// the model and executing the tools the model requests, until the model
// returns a plain answer. All state flows through the ThreadStore, so a
// turn can resume from the last checkpoint after a restart.
type Engine struct {
	provider     llm.Provider
	store        types.ThreadStore
	registry     *Registry
	maxRounds    int
	modelTimeout time.Duration
}

// New creates an Engine. maxRounds bounds the number of model invocations
// per turn, guarding against a model that never stops requesting tools.
// modelTimeout bounds each individual model invocation; zero disables it.
func New(provider llm.Provider, store types.ThreadStore, registry *Registry, maxRounds int, modelTimeout time.Duration) *Engine {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Engine{
		provider:     provider,
		store:        store,
		registry:     registry,
		maxRounds:    maxRounds,
		modelTimeout: modelTimeout,
	}
}

// RunTurn processes one user message on the given thread and returns the
// model's final answer. attachedDocument, when non-empty, is associated
// with the thread before the model is invoked.
//
// Failure semantics: a model failure aborts the turn and leaves the store
// at the last successful checkpoint; tool failures are converted to
// error-bearing tool results and the loop continues.
func (e *Engine) RunTurn(ctx context.Context, threadID types.ThreadID, userText, attachedDocument string) (string, error) {
	history, err := e.store.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}

	// A turn aborted mid-dispatch can leave a trailing assistant message
	// whose tool calls were never answered. Replaying that to the model is
	// invalid, so close them out with error results before going on.
	if repaired, changed := repairUnansweredToolCalls(history); changed {
		history = repaired
		if err := e.store.Checkpoint(ctx, threadID, history); err != nil {
			return "", fmt.Errorf("checkpoint repaired history: %w", err)
		}
	}

	if len(history) == 0 {
		if err := e.store.SetTitle(ctx, threadID, titleFrom(userText)); err != nil {
			return "", fmt.Errorf("set title: %w", err)
		}
	}
	if attachedDocument != "" {
		if err := e.store.SetAttachedDocument(ctx, threadID, attachedDocument); err != nil {
			return "", fmt.Errorf("attach document: %w", err)
		}
	}

	thread, err := e.store.Thread(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load thread metadata: %w", err)
	}

	// Document guidance goes into the persisted history exactly once; the
	// thread flag makes re-entry idempotent.
	if thread.DocumentPath != "" && !thread.DocGuidanceIssued {
		history = append(history, types.Message{
			Role:    types.RoleSystem,
			Content: documentGuidance(thread.DocumentPath),
			At:      time.Now().UTC(),
		})
		if err := e.store.MarkDocGuidanceIssued(ctx, threadID); err != nil {
			return "", fmt.Errorf("mark guidance: %w", err)
		}
	}

	history = append(history, types.Message{
		Role:    types.RoleUser,
		Content: userText,
		At:      time.Now().UTC(),
	})
	if err := e.store.Checkpoint(ctx, threadID, history); err != nil {
		return "", fmt.Errorf("checkpoint user message: %w", err)
	}

	providerTools := e.registry.AsProviderTools()

	for round := 0; round < e.maxRounds; round++ {
		resp, err := e.invokeModel(ctx, history, providerTools)
		if err != nil {
			return "", fmt.Errorf("model invocation: %w", err)
		}

		assistant := types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: toolCallsFromProvider(resp.ToolCalls),
			At:        time.Now().UTC(),
		}
		history = append(history, assistant)
		if err := e.store.Checkpoint(ctx, threadID, history); err != nil {
			return "", fmt.Errorf("checkpoint assistant message: %w", err)
		}

		// Terminal: no tool calls means the content is the final answer.
		if len(assistant.ToolCalls) == 0 {
			return assistant.Content, nil
		}

		// Exactly one tool result per call, appended in request order.
		for _, call := range assistant.ToolCalls {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("turn cancelled: %w", err)
			}
			history = append(history, types.Message{
				Role:       types.RoleTool,
				Content:    e.dispatch(ctx, call),
				ToolCallID: call.ID,
				ToolName:   call.Name,
				At:         time.Now().UTC(),
			})
		}
		if err := e.store.Checkpoint(ctx, threadID, history); err != nil {
			return "", fmt.Errorf("checkpoint tool results: %w", err)
		}
	}

	return "", fmt.Errorf("model did not produce a final answer within %d tool rounds", e.maxRounds)
}

// invokeModel converts the history to the provider wire format, applying
// in-memory guidance injection, and calls the model under the configured
// timeout.
func (e *Engine) invokeModel(ctx context.Context, history []types.Message, tools []llm.Tool) (*llm.Response, error) {
	if e.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.modelTimeout)
		defer cancel()
	}
	return e.provider.Complete(ctx, buildPrompt(history), tools)
}

// buildPrompt converts persisted messages to the provider format. When the
// trailing message is a retrieval tool result, a synthesis guidance message
// is inserted immediately before it, for this invocation only; it is never
// persisted.
func buildPrompt(history []types.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, messageToProvider(msg))
	}

	last := len(history) - 1
	if last >= 0 && history[last].Role == types.RoleTool && history[last].ToolName == RetrievalToolName {
		guidance := llm.Message{Role: string(types.RoleSystem), Content: synthesisGuidance}
		messages = append(messages[:last], append([]llm.Message{guidance}, messages[last:]...)...)
	}
	return messages
}

func messageToProvider(msg types.Message) llm.Message {
	out := llm.Message{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: string(msg.ToolCallID),
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   string(call.ID),
			Type: "function",
			Function: llm.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}

func toolCallsFromProvider(calls []llm.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, 0, len(calls))
	for _, call := range calls {
		id := call.ID
		if id == "" {
			id = string(types.NewCallID())
		}
		out = append(out, types.ToolCall{
			ID:        types.CallID(id),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

// repairUnansweredToolCalls backfills an error-bearing tool result, in
// request order, for every tool call of a trailing assistant message that
// has no matching result yet. Returns the (possibly extended) history and
// whether anything was added.
func repairUnansweredToolCalls(history []types.Message) ([]types.Message, bool) {
	i := len(history) - 1
	answered := make(map[types.CallID]bool)
	for i >= 0 && history[i].Role == types.RoleTool {
		answered[history[i].ToolCallID] = true
		i--
	}
	if i < 0 || history[i].Role != types.RoleAssistant || len(history[i].ToolCalls) == 0 {
		return history, false
	}

	changed := false
	for _, call := range history[i].ToolCalls {
		if answered[call.ID] {
			continue
		}
		slog.Warn("closing out interrupted tool call", "tool", call.Name, "call_id", string(call.ID))
		history = append(history, types.Message{
			Role:       types.RoleTool,
			Content:    fmt.Sprintf("error: the %s call was interrupted before it completed", call.Name),
			ToolCallID: call.ID,
			ToolName:   call.Name,
			At:         time.Now().UTC(),
		})
		changed = true
	}
	return history, changed
}

// dispatch executes one tool call. Unknown tools and tool failures become
// error strings in the result; tools never abort the engine.
func (e *Engine) dispatch(ctx context.Context, call types.ToolCall) string {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		slog.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		slog.Warn("tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	return result
}

func titleFrom(userText string) string {
	title := strings.Join(strings.Fields(userText), " ")
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen]) + "..."
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
