package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToolCall(t *testing.T) {
	call := NewToolCall("1", "search_technical_manual", `{"query":"gasket"}`)
	assert.Equal(t, SearchManualArgs{Query: "gasket"}, call.Args)

	call = NewToolCall("2", "register_product", `{"product_model":"Vitavit","purchase_date":"2024-01-15"}`)
	assert.Equal(t, RegisterProductArgs{ProductModel: "Vitavit", PurchaseDate: "2024-01-15"}, call.Args)

	call = NewToolCall("3", "register_product", `{"product_model":`)
	require.IsType(t, InvalidToolCall{}, call.Args)

	call = NewToolCall("4", "delete_everything", `{}`)
	invalid, ok := call.Args.(InvalidToolCall)
	require.True(t, ok)
	assert.Contains(t, invalid.Reason, "unknown tool")

	call = NewToolCall("5", "search_technical_manual", "")
	assert.Equal(t, "{}", call.Arguments)
	assert.Equal(t, SearchManualArgs{}, call.Args)
}

func TestToolboxExecute(t *testing.T) {
	searcher := &fakeSearcher{reply: "manual text"}
	box := NewToolbox(searcher, NewRegistrationService(&fakeRegistrationStore{}))
	ctx := context.Background()

	assert.Equal(t, "manual text", box.Execute(ctx, SessionContext{}, NewToolCall("1", "search_technical_manual", `{"query":"ring"}`)))
	assert.Contains(t, box.Execute(ctx, SessionContext{}, NewToolCall("2", "oops", `{}`)), "Tool call rejected")
	assert.Contains(t, box.Execute(ctx, SessionContext{}, NewToolCall("3", "register_product", `{"product_model":"x","purchase_date":"2024-01-01"}`)), "could not be identified")
	assert.Len(t, box.Specs(), 2)
}
