package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel talks to the OpenAI API, or any compatible endpoint, for chat
// completions with tool calling and for embeddings.
type OpenAIModel struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

func NewOpenAIModel(apiKey, baseURL, chatModel, embeddingModel string) *OpenAIModel {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIModel{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

func (m *OpenAIModel) Complete(ctx context.Context, systemInstruction string, history []Message, tools []ToolSpec) (Completion, error) {
	req := m.chatRequest(systemInstruction, history, tools)
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// chatRequest builds a deterministic request. Temperature is omitted from
// the JSON when zero, so the smallest positive value stands in for it.
func (m *OpenAIModel) chatRequest(systemInstruction string, history []Message, tools []ToolSpec) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       m.chatModel,
		Messages:    toOpenAIMessages(systemInstruction, history),
		Tools:       toOpenAITools(tools),
		Temperature: math.SmallestNonzeroFloat32,
	}
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(m.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding data received from OpenAI")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(systemInstruction string, history []Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemInstruction,
	})

	for _, m := range history {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      string(call.Name),
						Arguments: call.Arguments,
					},
				})
			}
			msgs = append(msgs, msg)
		case RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       string(m.ToolName),
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return msgs
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(spec.Name),
				Description: spec.Description,
				Parameters:  parametersSchema(spec),
			},
		})
	}
	return tools
}

// parametersSchema renders a ToolSpec's parameters as a JSON schema object.
func parametersSchema(spec ToolSpec) map[string]any {
	properties := make(map[string]any, len(spec.Params))
	required := make([]string, 0, len(spec.Params))
	for _, p := range spec.Params {
		properties[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) Completion {
	if len(msg.ToolCalls) == 0 {
		return FinalAnswer{Text: msg.Content}
	}
	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, NewToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return ToolInvocation{Text: msg.Content, Calls: calls}
}
