package providers

import (
	"encoding/json"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/spur/pkg/llm"
)

func sampleRequest() llm.Request {
	return llm.Request{
		Model:       "m",
		System:      "be brief",
		Messages:    []llm.Message{llm.TextMessage(llm.RoleUser, "hello")},
		MaxTokens:   100,
		Temperature: 0.5,
	}
}

func TestBuildMessages_SystemPrepend(t *testing.T) {
	out := buildMessages([]llm.Message{llm.TextMessage(llm.RoleUser, "hi")}, "you are helpful")
	if len(out) != 2 {
		t.Fatalf("want 2 messages, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "you are helpful" {
		t.Errorf("first message = %+v", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleUser || out[1].Content != "hi" {
		t.Errorf("second message = %+v", out[1])
	}
}

func TestBuildMessages_NoSystem(t *testing.T) {
	out := buildMessages([]llm.Message{llm.TextMessage(llm.RoleAssistant, "ok")}, "")
	if len(out) != 1 || out[0].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("got %+v", out)
	}
}

func TestOpenAIRequest(t *testing.T) {
	got := openaiRequest(sampleRequest())
	if got.Model != "m" || got.MaxTokens != 100 || got.Temperature != 0.5 {
		t.Errorf("got %+v", got)
	}
	if d := openaiRequest(llm.Request{Model: "m"}); d.MaxTokens != defaultMaxTokens {
		t.Errorf("default max tokens = %d", d.MaxTokens)
	}
}

func TestAnthropicParams(t *testing.T) {
	p := anthropicParams(sampleRequest())
	if p.Model != anthropicsdk.Model("m") {
		t.Errorf("model = %q", p.Model)
	}
	if p.MaxTokens != 100 {
		t.Errorf("max tokens = %d", p.MaxTokens)
	}
	if len(p.System) != 1 || p.System[0].Text != "be brief" {
		t.Errorf("system = %+v", p.System)
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != anthropicsdk.MessageParamRoleUser {
		t.Errorf("messages = %+v", p.Messages)
	}
	if _, err := json.Marshal(p); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestGeminiRequest(t *testing.T) {
	r := geminiRequest(sampleRequest())
	if r.SystemInstruction == nil || r.SystemInstruction.Parts[0] != genai.Text("be brief") {
		t.Errorf("system instruction = %+v", r.SystemInstruction)
	}
	if len(r.Contents) != 1 || r.Contents[0].Role != "user" {
		t.Errorf("contents = %+v", r.Contents)
	}
	if r.GenerationConfig.MaxOutputTokens == nil || *r.GenerationConfig.MaxOutputTokens != 100 {
		t.Errorf("max output tokens = %v", r.GenerationConfig.MaxOutputTokens)
	}
}

func TestRegistered(t *testing.T) {
	want := map[string]bool{"anthropic": true, "gemini": true, "openai": true}
	for _, p := range llm.Providers() {
		delete(want, p)
	}
	if len(want) != 0 {
		t.Errorf("providers not registered: %v", want)
	}
	req := sampleRequest()
	req.Provider = "openai"
	body, err := llm.Preview(req)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if _, ok := body.(openai.ChatCompletionRequest); !ok {
		t.Errorf("preview type = %T", body)
	}
}
