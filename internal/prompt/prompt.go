// Package prompt assembles the conversation sent to the model: the
// history window in chronological order followed by the current turn.
// The system prompt travels separately in the completion request.
package prompt

import (
	"github.com/quailsgpt/quailsgpt/internal/agent"
	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// Assemble builds the completion messages for one request. The window
// comes first, oldest turn leading, and the current turn is always last.
func Assemble(window []*models.Message, turn *models.Message) []agent.CompletionMessage {
	messages := make([]agent.CompletionMessage, 0, len(window)+1)
	for _, m := range window {
		messages = append(messages, toCompletionMessage(m))
	}
	if turn != nil {
		msg := toCompletionMessage(turn)
		if msg.Role == "" {
			msg.Role = string(models.RoleUser)
		}
		messages = append(messages, msg)
	}
	return messages
}

func toCompletionMessage(m *models.Message) agent.CompletionMessage {
	return agent.CompletionMessage{
		Role:        string(m.Role),
		Content:     m.Content,
		ToolCalls:   m.ToolCalls,
		ToolResults: m.ToolResults,
		Attachments: m.Attachments,
	}
}
