package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/metrics"
)

type ToolName string

const (
	ToolSearchManual    ToolName = "search_technical_manual"
	ToolRegisterProduct ToolName = "register_product"
)

type ToolParam struct {
	Name        string
	Description string
}

// ToolSpec describes a tool to the model. All parameters are required strings.
type ToolSpec struct {
	Name        ToolName
	Description string
	Params      []ToolParam
}

var toolSpecs = []ToolSpec{
	{
		Name: ToolSearchManual,
		Description: "Searches the technical manuals. Only documents for the customer's product family " +
			"and the general documents (warranty and similar) are returned.",
		Params: []ToolParam{
			{Name: "query", Description: "What to look up in the manuals."},
		},
	},
	{
		Name: ToolRegisterProduct,
		Description: "Registers a product purchase for the current customer and sets the maintenance date. " +
			"The customer is identified automatically.",
		Params: []ToolParam{
			{Name: "product_model", Description: "The purchased product model."},
			{Name: "purchase_date", Description: "Purchase date in YYYY-MM-DD format."},
		},
	},
}

// ToolCall is a tool request decoded from a model response. Arguments keeps
// the raw JSON so the call can be replayed to the model verbatim.
type ToolCall struct {
	ID        string
	Name      ToolName
	Arguments string
	Args      ToolArgs
}

// ToolArgs is one of SearchManualArgs, RegisterProductArgs or InvalidToolCall.
type ToolArgs interface {
	isToolArgs()
}

type SearchManualArgs struct {
	Query string `json:"query"`
}

type RegisterProductArgs struct {
	ProductModel string `json:"product_model"`
	PurchaseDate string `json:"purchase_date"`
}

// InvalidToolCall stands in for a request naming an unknown tool or carrying
// arguments that do not decode.
type InvalidToolCall struct {
	Reason string
}

func (SearchManualArgs) isToolArgs()    {}
func (RegisterProductArgs) isToolArgs() {}
func (InvalidToolCall) isToolArgs()     {}

// NewToolCall decodes a model's tool request into typed arguments.
func NewToolCall(id, name, arguments string) ToolCall {
	call := ToolCall{ID: id, Name: ToolName(name), Arguments: arguments}
	if strings.TrimSpace(arguments) == "" {
		call.Arguments = "{}"
	}

	switch call.Name {
	case ToolSearchManual:
		var args SearchManualArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			call.Args = InvalidToolCall{Reason: fmt.Sprintf("arguments for %s are not valid JSON: %v", name, err)}
			return call
		}
		call.Args = args
	case ToolRegisterProduct:
		var args RegisterProductArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			call.Args = InvalidToolCall{Reason: fmt.Sprintf("arguments for %s are not valid JSON: %v", name, err)}
			return call
		}
		call.Args = args
	default:
		call.Args = InvalidToolCall{Reason: fmt.Sprintf("unknown tool %q", name)}
	}
	return call
}

type ManualSearcher interface {
	Search(ctx context.Context, query string, sc SessionContext) string
}

type ProductRegistrar interface {
	RegisterFromChat(ctx context.Context, sc SessionContext, productModel, purchaseDate string) string
}

// Toolbox executes tool calls. Every call yields text for the model; tool
// failures are reported in that text, never as errors.
type Toolbox struct {
	searcher  ManualSearcher
	registrar ProductRegistrar
}

func NewToolbox(searcher ManualSearcher, registrar ProductRegistrar) *Toolbox {
	return &Toolbox{searcher: searcher, registrar: registrar}
}

func (t *Toolbox) Specs() []ToolSpec {
	return toolSpecs
}

func (t *Toolbox) Execute(ctx context.Context, sc SessionContext, call ToolCall) string {
	logger := log.WithFields(log.Fields{"tool": call.Name, "call_id": call.ID, "family": sc.Family})

	var result string
	outcome := "ok"
	switch args := call.Args.(type) {
	case SearchManualArgs:
		logger.WithField("query", args.Query).Debug("running manual search")
		result = t.searcher.Search(ctx, args.Query, sc)
	case RegisterProductArgs:
		logger.WithField("model", args.ProductModel).Debug("registering product")
		result = t.registrar.RegisterFromChat(ctx, sc, args.ProductModel, args.PurchaseDate)
	case InvalidToolCall:
		logger.Warn(args.Reason)
		outcome = "rejected"
		result = "Tool call rejected: " + args.Reason
	default:
		outcome = "rejected"
		result = fmt.Sprintf("Tool call rejected: no handler for %q", call.Name)
	}

	metrics.ToolCalls.WithLabelValues(string(call.Name), outcome).Inc()
	return result
}
