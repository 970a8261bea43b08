package providers

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/ravi-parthasarathy/spur/pkg/llm"
)

func init() {
	llm.RegisterPreviewer("gemini", func(req llm.Request) (any, error) {
		return geminiRequest(req), nil
	})
}

// GeminiRequest mirrors what a genai.GenerativeModel sends: the SDK keeps
// model settings on the model value rather than in a request struct.
type GeminiRequest struct {
	Model             string                 `json:"model"`
	SystemInstruction *genai.Content         `json:"system_instruction,omitempty"`
	Contents          []*genai.Content       `json:"contents"`
	GenerationConfig  genai.GenerationConfig `json:"generation_config"`
}

func geminiRequest(req llm.Request) GeminiRequest {
	out := GeminiRequest{Model: req.Model}
	if req.System != "" {
		out.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}
	if req.MaxTokens > 0 {
		out.GenerationConfig.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != 0 {
		out.GenerationConfig.SetTemperature(float32(req.Temperature))
	}
	return out
}
