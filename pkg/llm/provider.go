package llm

import "context"

// Provider defines the boundary to the language model. Implementations
// handle protocol-specific details such as request formatting,
// authentication, and response parsing. The model is a black box from
// message history to a response that is either final content or a set of
// tool-call requests.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}
