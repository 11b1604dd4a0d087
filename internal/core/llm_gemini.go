package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GeminiModel is the Gemini backed ChatModel and Embedder.
type GeminiModel struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

func NewGeminiModel(ctx context.Context, apiKey, chatModel, embeddingModel string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}, nil
}

func (m *GeminiModel) Close() {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.WithError(err).Error("error closing GenAI client")
		} else {
			log.Debug("GenAI client closed")
		}
	}
}

func (m *GeminiModel) Embed(ctx context.Context, text string) ([]float32, error) {
	em := m.client.EmbeddingModel(m.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (m *GeminiModel) Complete(ctx context.Context, systemInstruction string, history []Message, tools []ToolSpec) (Completion, error) {
	model := m.client.GenerativeModel(m.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.Tools = toGeminiTools(tools)
	model.SetTemperature(0)

	contents := toGeminiContents(history)
	if len(contents) == 0 {
		return nil, errors.New("prompt history is empty for chat completion")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("last message in history has role %q, expected user", last.Role)
	}

	chatSession := model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini response had no candidates")
	}
	return fromGeminiParts(resp.Candidates[0].Content.Parts), nil
}

func toGeminiTools(specs []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(spec.Params)),
		}
		for _, p := range spec.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			schema.Required = append(schema.Required, p.Name)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        string(spec.Name),
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiContents maps the conversation onto Gemini's user/model turns.
// Consecutive tool results are sent together as one user turn.
func toGeminiContents(history []Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				args := map[string]any{}
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					log.WithError(err).WithField("tool", call.Name).Debug("tool arguments are not a JSON object")
				}
				parts = append(parts, genai.FunctionCall{Name: string(call.Name), Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			part := genai.FunctionResponse{
				Name:     string(m.ToolName),
				Response: map[string]any{"content": m.Content},
			}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		}
	}
	return contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return true
}

// fromGeminiParts turns response parts into a Completion. Gemini does not
// assign call IDs, so each call gets a fresh UUID.
func fromGeminiParts(parts []genai.Part) Completion {
	var text strings.Builder
	var calls []ToolCall
	for _, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				args = []byte("{}")
			}
			calls = append(calls, NewToolCall(uuid.NewString(), p.Name, string(args)))
		default:
			log.Debugf("ignoring gemini response part of type %T", part)
		}
	}
	if len(calls) == 0 {
		return FinalAnswer{Text: text.String()}
	}
	return ToolInvocation{Text: text.String(), Calls: calls}
}
