package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client is the completion-service collaborator. Implementations must
// support both conversational replies and structured extraction (the
// generation pipeline parses the returned text as JSON).
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Embedder is the embedding-service collaborator. A failed call degrades
// memory writes to text-only records; it never blocks them.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
