// Package llm turns LLM call nodes into provider-neutral requests and
// previews the request body each provider SDK would send.
package llm

import (
	"fmt"
	"strings"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TextMessage is a convenience constructor for a plain-text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// Request is the provider-neutral form of one LLM call node, with its
// templates rendered.
type Request struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ParseModelID splits "provider:model-name" into (provider, modelName, nil).
// Both parts must be non-empty and the colon separator is required.
// Returns an error if the format is invalid.
func ParseModelID(id string) (provider, modelName string, err error) {
	for i, c := range id {
		if c == ':' {
			p := id[:i]
			m := id[i+1:]
			if p == "" {
				return "", "", fmt.Errorf("model ID %q: empty provider name", id)
			}
			if m == "" {
				return "", "", fmt.Errorf("model ID %q: empty model name", id)
			}
			return p, m, nil
		}
	}
	return "", "", fmt.Errorf("model ID %q: missing 'provider:model-name' format", id)
}

// NormalizeModelID rewrites the spellings saved documents use into
// "provider:model-name". "openai/gpt-4o" becomes "openai:gpt-4o", and bare
// names get their provider from a known prefix.
func NormalizeModelID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if strings.Contains(id, ":") {
		if _, _, err := ParseModelID(id); err != nil {
			return "", err
		}
		return id, nil
	}
	if p, m, ok := strings.Cut(id, "/"); ok && p != "" && m != "" {
		return p + ":" + m, nil
	}
	switch {
	case strings.HasPrefix(id, "gpt-"), strings.HasPrefix(id, "chatgpt-"), strings.HasPrefix(id, "o1"):
		return "openai:" + id, nil
	case strings.HasPrefix(id, "claude"):
		return "anthropic:" + id, nil
	case strings.HasPrefix(id, "gemini"):
		return "gemini:" + id, nil
	}
	return "", fmt.Errorf("model ID %q: cannot infer provider", id)
}
