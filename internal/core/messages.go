package core

import (
	"context"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Assistant messages may carry tool
// calls; tool messages answer the call named by ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   ToolName
}

// Completion is the result of one model call: either a FinalAnswer or a
// ToolInvocation.
type Completion interface {
	isCompletion()
}

type FinalAnswer struct {
	Text string
}

type ToolInvocation struct {
	Text  string // Optional text the model produced alongside the calls
	Calls []ToolCall
}

func (FinalAnswer) isCompletion()    {}
func (ToolInvocation) isCompletion() {}

// ChatModel is a language model able to request tool calls.
type ChatModel interface {
	Complete(ctx context.Context, systemInstruction string, history []Message, tools []ToolSpec) (Completion, error)
}

// Embedder turns text into a vector. Ingestion and retrieval must use the
// same embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
