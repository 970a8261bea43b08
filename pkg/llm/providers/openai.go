package providers

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/spur/pkg/llm"
)

func init() {
	llm.RegisterPreviewer("openai", func(req llm.Request) (any, error) {
		return openaiRequest(req), nil
	})
}

func openaiRequest(req llm.Request) openai.ChatCompletionRequest {
	maxTokens := defaultMaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		Messages:    buildMessages(req.Messages, req.System),
	}
}

// buildMessages converts messages to OpenAI's chat format. The system prompt
// becomes a leading system message.
func buildMessages(msgs []llm.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return out
}
