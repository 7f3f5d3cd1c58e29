package skill

import (
	"context"
	"fmt"
	"log"

	"github.com/syllabi/chat-platform/internal/ai"
)

// ToolBuilder converts selected skills into callable tool definitions for
// the model runtime. Each tool wraps the executor; a failing webhook
// surfaces as an error payload in the tool result, never as a failed
// turn.
type ToolBuilder struct {
	selector *Selector
	executor *Executor
}

func NewToolBuilder(selector *Selector, executor *Executor) *ToolBuilder {
	return &ToolBuilder{selector: selector, executor: executor}
}

// SkillsAsTools resolves the selection config and adapts each skill into
// an ai.Tool keyed by skill name. A skill that fails validation is
// skipped; a resolution failure returns an empty tool set so the chat
// turn proceeds without skills.
func (b *ToolBuilder) SkillsAsTools(ctx context.Context, chatbotID string, ec ExecutionContext, cfg SelectionConfig) map[string]ai.Tool {
	selected, err := b.selector.Select(ctx, chatbotID, cfg)
	if err != nil {
		log.Printf("[ToolsBuilder] failed to select skills for chatbot %s: %v", chatbotID, err)
		return map[string]ai.Tool{}
	}

	tools := make(map[string]ai.Tool, len(selected))
	for _, s := range selected {
		if errs := ValidateForTool(s); len(errs) > 0 {
			log.Printf("[ToolsBuilder] skipping skill %s: %v", s.Name, errs)
			continue
		}

		s := s
		toolEC := ec
		toolEC.SkillID = s.ID
		tools[s.Name] = ai.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  ParametersSchema(s.FunctionSchema),
			Execute: func(callCtx context.Context, args map[string]any) any {
				result := b.executor.Execute(callCtx, s, args, toolEC)
				if result.Success {
					return map[string]any{
						"success": true,
						"message": fmt.Sprintf("Successfully executed %s", s.DisplayName),
						"data":    result.Data,
					}
				}
				errMsg := result.Error
				if errMsg == "" {
					errMsg = "skill execution failed"
				}
				return map[string]any{"success": false, "error": errMsg}
			},
		}
	}

	log.Printf("[ToolsBuilder] created %d tools for chatbot %s using %s method", len(tools), chatbotID, cfg.Method)
	return tools
}
