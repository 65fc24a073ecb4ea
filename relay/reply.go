package relay

import (
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/threadrelay/pkg/threads"
)

// latestAssistant returns the newest assistant-authored message, or nil.
// Messages fetched newest-first are already ordered, so the first assistant entry
// wins; otherwise entries are ordered by creation time and the last one wins.
func latestAssistant(msgs []openai.Message, order string) *openai.Message {
	var assistant []openai.Message
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleAssistant {
			assistant = append(assistant, m)
		}
	}
	if len(assistant) == 0 {
		return nil
	}

	if order == threads.OrderDesc {
		return &assistant[0]
	}

	sort.SliceStable(assistant, func(i, j int) bool {
		return assistant[i].CreatedAt < assistant[j].CreatedAt
	})
	return &assistant[len(assistant)-1]
}

// replyText returns the first non-empty text block of msg, or empty.
func replyText(msg *openai.Message, empty string) string {
	if msg == nil {
		return empty
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != nil && block.Text.Value != "" {
			return block.Text.Value
		}
	}
	return empty
}
