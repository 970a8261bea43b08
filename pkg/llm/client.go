package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// Previewer turns a Request into the exact request body a provider SDK would
// send, without sending it.
type Previewer func(req Request) (any, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Previewer{}
)

// RegisterPreviewer registers the previewer for a named provider.
// Call this from init() in provider packages.
func RegisterPreviewer(name string, p Previewer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = p
}

// Providers lists the registered provider names in sorted order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Preview builds the provider request body for req.
func Preview(req Request) (any, error) {
	registryMu.RLock()
	p, ok := registry[req.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (model %q), did you import the provider package?", req.Provider, req.Model)
	}
	return p(req)
}

// BuildRequest renders the templates of an LLM call node against inputs.
// defaultModel is used when the node names no model.
func BuildRequest(n *workflow.Node, inputs map[string]any, defaultModel string) (Request, error) {
	cfg, ok := n.Config.(*workflow.LLMCallConfig)
	if !ok {
		return Request{}, fmt.Errorf("node %q is %s, not an LLM call", n.ID, n.Type)
	}
	model := cfg.LLMInfo.Model
	if model == "" {
		model = defaultModel
	}
	id, err := NormalizeModelID(model)
	if err != nil {
		return Request{}, fmt.Errorf("node %q: %w", n.ID, err)
	}
	provider, name, _ := ParseModelID(id)

	system, err := workflow.Render(cfg.SystemMessage, inputs)
	if err != nil {
		return Request{}, fmt.Errorf("node %q system_message: %w", n.ID, err)
	}
	user, err := workflow.Render(cfg.UserMessage, inputs)
	if err != nil {
		return Request{}, fmt.Errorf("node %q user_message: %w", n.ID, err)
	}
	return Request{
		Provider:    provider,
		Model:       name,
		System:      system,
		Messages:    []Message{TextMessage(RoleUser, user)},
		MaxTokens:   cfg.LLMInfo.MaxTokens,
		Temperature: cfg.LLMInfo.Temperature,
	}, nil
}
