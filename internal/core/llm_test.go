package core

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolTurnHistory() []Message {
	return []Message{
		{Role: RoleUser, Content: "gasket?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			NewToolCall("a", string(ToolSearchManual), `{"query":"gasket"}`),
			NewToolCall("b", string(ToolSearchManual), `{"query":"seal"}`),
		}},
		{Role: RoleTool, Content: "first", ToolCallID: "a", ToolName: ToolSearchManual},
		{Role: RoleTool, Content: "second", ToolCallID: "b", ToolName: ToolSearchManual},
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages("be helpful", toolTurnHistory())
	require.Len(t, msgs, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
	require.Len(t, msgs[2].ToolCalls, 2)
	assert.Equal(t, "a", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, `{"query":"gasket"}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, openai.ChatMessageRoleTool, msgs[4].Role)
	assert.Equal(t, "b", msgs[4].ToolCallID)
}

func TestToOpenAITools(t *testing.T) {
	tools := toOpenAITools(toolSpecs)
	require.Len(t, tools, 2)
	assert.Equal(t, "register_product", tools[1].Function.Name)
	schema, ok := tools[1].Function.Parameters.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"product_model", "purchase_date"}, schema["required"])
}

func TestFromOpenAIMessage(t *testing.T) {
	c := fromOpenAIMessage(openai.ChatCompletionMessage{Content: "done"})
	assert.Equal(t, FinalAnswer{Text: "done"}, c)

	c = fromOpenAIMessage(openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{{
		ID:       "x",
		Function: openai.FunctionCall{Name: "search_technical_manual", Arguments: `{"query":"valve"}`},
	}}})
	inv, ok := c.(ToolInvocation)
	require.True(t, ok)
	require.Len(t, inv.Calls, 1)
	assert.Equal(t, SearchManualArgs{Query: "valve"}, inv.Calls[0].Args)
}

func TestToGeminiContentsGroupsToolResults(t *testing.T) {
	contents := toGeminiContents(toolTurnHistory())
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "gasket", call.Args["query"])

	assert.Equal(t, "user", contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	resp, ok := contents[2].Parts[1].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "second", resp.Response["content"])
}

func TestFromGeminiParts(t *testing.T) {
	assert.Equal(t, FinalAnswer{Text: "ok"}, fromGeminiParts([]genai.Part{genai.Text("ok")}))

	c := fromGeminiParts([]genai.Part{genai.FunctionCall{
		Name: "register_product",
		Args: map[string]any{"product_model": "Adamant", "purchase_date": "2024-02-20"},
	}})
	inv, ok := c.(ToolInvocation)
	require.True(t, ok)
	require.Len(t, inv.Calls, 1)
	assert.NotEmpty(t, inv.Calls[0].ID)
	assert.Equal(t, RegisterProductArgs{ProductModel: "Adamant", PurchaseDate: "2024-02-20"}, inv.Calls[0].Args)
}

func TestOpenAIChatRequestIsDeterministic(t *testing.T) {
	m := NewOpenAIModel("sk-test", "", "gpt-4o-mini", "text-embedding-3-small")
	req := m.chatRequest("be helpful", toolTurnHistory(), toolSpecs)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Greater(t, req.Temperature, float32(0))
	assert.Less(t, req.Temperature, float32(1e-6))
	assert.Len(t, req.Tools, 2)
	assert.Len(t, req.Messages, 5)
}
