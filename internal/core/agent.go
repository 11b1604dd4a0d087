package core

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/metrics"
)

const systemInstructionTemplate = `You are Ahmet Usta, the authorized Fissler service assistant.

Customer name: %[1]s
Customer product: %[2]s
Product family: %[3]s

CRITICAL RULES:

1. ALWAYS SEARCH FOR TECHNICAL QUESTIONS:
   - Product features (coloured rings, cooking levels, fill levels)
   - Usage instructions (how to use, how to clean)
   - Troubleshooting (steam leaking, lid does not open, etc.)
   - Spare parts (gasket, valve, etc.)
   For ANY such question call the search_technical_manual tool first.
   Never say the manuals do not cover something before you have searched.

2. YOU MAY ANSWER WITHOUT SEARCHING ONLY THESE FIXED FACTS:
   - Customer service phone: 444 75 58
   - Address: Turkali Mh. Ihlamurdere Caddesi 85, 34357 Besiktas/Istanbul
   - Website: www.fisslermagaza.com.tr
   - Warranty: 2 years (material and workmanship defects)
   - General safety rules (no oven use, no pressurised frying, etc.)

3. PRIORITY RULE:
   If the search results contain information for the %[3]s family, USE IT.
   Ignore information that belongs to other product families.

4. OTHER RULES:
   - "Rubber seal" and "gasket" mean the pressure cooker gasket.
   - Oven: NEVER.
   - Pressurised frying: NEVER.
   - Fill levels: legumes 1/3, rice 1/2, everything else 2/3.
   - Cooling with water: only from the side.
   - Sterilisation: NOT supported.
   - To register a purchase, use the register_product tool with the date as YYYY-MM-DD.

If you are unsure or need details, search first and answer afterwards.`

// SystemInstruction builds the instruction for one assistant turn.
func SystemInstruction(conv Conversation, fam family.Family) string {
	if fam == "" {
		fam = family.General
	}
	return fmt.Sprintf(systemInstructionTemplate, conv.UserName, conv.ProductModel, fam.Display())
}

// Agent alternates between an assistant turn and a tool turn until the model
// answers without requesting tools.
type Agent struct {
	model         ChatModel
	tools         *Toolbox
	maxToolRounds int
}

func NewAgent(model ChatModel, tools *Toolbox, maxToolRounds int) *Agent {
	return &Agent{model: model, tools: tools, maxToolRounds: maxToolRounds}
}

// RunTurn answers userText. It returns the messages the turn produced, in
// order, starting with the user message and ending with the final answer.
// The caller's conversation is not modified.
func (a *Agent) RunTurn(ctx context.Context, sc SessionContext, conv Conversation, userText string) ([]Message, string, error) {
	history := make([]Message, 0, len(conv.Messages)+4)
	history = append(history, conv.Messages...)
	history = append(history, Message{Role: RoleUser, Content: userText})
	turnStart := len(conv.Messages)

	instruction := SystemInstruction(conv, sc.Family)
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			metrics.TurnFailures.WithLabelValues("cancelled").Inc()
			return nil, "", fmt.Errorf("turn abandoned before round %d: %w", round, err)
		}
		completion, err := a.model.Complete(ctx, instruction, history, a.tools.Specs())
		if err != nil {
			metrics.TurnFailures.WithLabelValues("model_error").Inc()
			return nil, "", fmt.Errorf("model call failed in round %d: %w", round, err)
		}

		switch c := completion.(type) {
		case FinalAnswer:
			history = append(history, Message{Role: RoleAssistant, Content: c.Text})
			metrics.ToolRounds.Observe(float64(round))
			return history[turnStart:], c.Text, nil

		case ToolInvocation:
			if round >= a.maxToolRounds {
				metrics.TurnFailures.WithLabelValues("not_converged").Inc()
				return nil, "", fmt.Errorf("%w after %d tool rounds", ErrNotConverged, round)
			}
			history = append(history, Message{Role: RoleAssistant, Content: c.Text, ToolCalls: c.Calls})
			for _, call := range c.Calls {
				result := a.tools.Execute(ctx, sc, call)
				history = append(history, Message{
					Role:       RoleTool,
					Content:    result,
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})
			}
			log.WithFields(log.Fields{"round": round + 1, "calls": len(c.Calls)}).Debug("tool round complete")

		default:
			return nil, "", fmt.Errorf("unexpected completion type %T", completion)
		}
	}
}
