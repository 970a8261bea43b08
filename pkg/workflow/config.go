package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// InputPolicy governs how many committed edges a single input handle accepts.
type InputPolicy int

const (
	// InputExclusive allows one edge per input handle. Merge nodes use it too:
	// every predecessor gets its own handle.
	InputExclusive InputPolicy = iota
	// InputBranchTolerant keeps handles connectable after they are occupied so
	// mutually exclusive branches can converge.
	InputBranchTolerant
)

func (p InputPolicy) String() string {
	switch p {
	case InputBranchTolerant:
		return "branch-tolerant"
	default:
		return "exclusive"
	}
}

// Template names one templated string field of a config.
type Template struct {
	Name string
	Text *string
}

// Config is the node-type specific configuration. Every variant embeds Common.
type Config interface {
	Base() *Common
	// Templates returns pointers to the templated string fields, in a fixed order.
	Templates() []Template
	Clone() Config
}

// Brancher is implemented by configs of nodes with several named outputs.
type Brancher interface {
	Branches() []string
}

// InputPolicer is implemented by configs that declare a non-default input policy.
type InputPolicer interface {
	InputPolicy() InputPolicy
}

// Common holds the fields shared by every config variant.
type Common struct {
	InputSchema      *Schema `json:"input_schema,omitempty"`
	OutputSchema     *Schema `json:"output_schema,omitempty"`
	OutputJSONSchema string  `json:"output_json_schema,omitempty"`
	HasFixedOutput   bool    `json:"has_fixed_output,omitempty"`

	// Extra keeps config keys this package does not model, so they survive a
	// load/save cycle.
	Extra map[string]json.RawMessage `json:"-"`
}

func (c *Common) Base() *Common { return c }

// Schema returns the declared schema for side, or an empty one.
func (c *Common) Schema(side Side) Schema {
	var s *Schema
	if side == SideInput {
		s = c.InputSchema
	} else {
		s = c.OutputSchema
	}
	if s == nil {
		return Schema{}
	}
	return s.Clone()
}

// SetSchema replaces the schema for side.
func (c *Common) SetSchema(side Side, s Schema) {
	cp := s.Clone()
	if side == SideInput {
		c.InputSchema = &cp
	} else {
		c.OutputSchema = &cp
	}
}

// HasSchema reports whether a schema is declared for side.
func (c *Common) HasSchema(side Side) bool {
	if side == SideInput {
		return c.InputSchema != nil
	}
	return c.OutputSchema != nil
}

func (c Common) clone() Common {
	out := c
	if c.InputSchema != nil {
		s := c.InputSchema.Clone()
		out.InputSchema = &s
	}
	if c.OutputSchema != nil {
		s := c.OutputSchema.Clone()
		out.OutputSchema = &s
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// LLMInfo selects and tunes the model behind an LLM call.
type LLMInfo struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// LLMCallConfig configures a single templated LLM call.
type LLMCallConfig struct {
	Common
	LLMInfo       LLMInfo `json:"llm_info"`
	SystemMessage string  `json:"system_message"`
	UserMessage   string  `json:"user_message"`
}

func (c *LLMCallConfig) Templates() []Template {
	return []Template{
		{Name: "system_message", Text: &c.SystemMessage},
		{Name: "user_message", Text: &c.UserMessage},
	}
}

func (c *LLMCallConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	return &out
}

// Route is one named condition of a router. Routes are evaluated in order.
type Route struct {
	Name string `json:"name"`
	When string `json:"when,omitempty"`
}

// RouterConfig configures a first-match router.
type RouterConfig struct {
	Common
	Routes []Route `json:"routes"`
}

func (c *RouterConfig) Templates() []Template { return nil }

func (c *RouterConfig) Branches() []string {
	out := make([]string, len(c.Routes))
	for i, r := range c.Routes {
		out[i] = r.Name
	}
	return out
}

func (c *RouterConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	out.Routes = append([]Route(nil), c.Routes...)
	return &out
}

// CoalesceConfig configures a node that surfaces the single value produced by
// one of several mutually exclusive upstream branches.
type CoalesceConfig struct {
	Common
	// Preferences orders input handle ids; the first one that produced a value wins.
	Preferences []string `json:"preferences,omitempty"`
}

func (c *CoalesceConfig) Templates() []Template { return nil }

func (c *CoalesceConfig) InputPolicy() InputPolicy { return InputBranchTolerant }

func (c *CoalesceConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	out.Preferences = append([]string(nil), c.Preferences...)
	return &out
}

// MergeConfig configures a node that combines the values of all predecessors.
type MergeConfig struct {
	Common
}

func (c *MergeConfig) Templates() []Template { return nil }

func (c *MergeConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	return &out
}

// ScraperConfig configures a web scrape of a templated URL.
type ScraperConfig struct {
	Common
	URLTemplate     string `json:"url_template"`
	OnlyMainContent bool   `json:"only_main_content,omitempty"`
}

func (c *ScraperConfig) Templates() []Template {
	return []Template{{Name: "url_template", Text: &c.URLTemplate}}
}

func (c *ScraperConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	return &out
}

// InputConfig configures the workflow entry node.
type InputConfig struct {
	Common
	EnforceSchema bool `json:"enforce_schema,omitempty"`
}

func (c *InputConfig) Templates() []Template { return nil }

func (c *InputConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	return &out
}

// OutputConfig configures the workflow exit node.
type OutputConfig struct {
	Common
	// OutputMap maps an output field to a "Title.field" reference.
	OutputMap map[string]string `json:"output_map,omitempty"`
}

func (c *OutputConfig) Templates() []Template { return nil }

func (c *OutputConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	if c.OutputMap != nil {
		out.OutputMap = make(map[string]string, len(c.OutputMap))
		for k, v := range c.OutputMap {
			out.OutputMap[k] = v
		}
	}
	return &out
}

// GenericConfig holds the config of node types without a dedicated variant.
// All type-specific keys live in Extra.
type GenericConfig struct {
	Common
}

func (c *GenericConfig) Templates() []Template { return nil }

func (c *GenericConfig) Clone() Config {
	out := *c
	out.Common = c.Common.clone()
	return &out
}

// NewConfig returns the zero config variant for t.
func NewConfig(t NodeType) Config {
	switch t {
	case NodeTypeLLMCall:
		return &LLMCallConfig{}
	case NodeTypeRouter:
		return &RouterConfig{}
	case NodeTypeCoalesce:
		return &CoalesceConfig{}
	case NodeTypeMerge:
		return &MergeConfig{}
	case NodeTypeScraper:
		return &ScraperConfig{}
	case NodeTypeInput:
		return &InputConfig{}
	case NodeTypeOutput:
		return &OutputConfig{}
	default:
		return &GenericConfig{}
	}
}

// DecodeConfig decodes raw JSON into the variant selected by t. Keys the
// variant does not declare are kept in Common.Extra.
func DecodeConfig(t NodeType, raw []byte) (Config, error) {
	cfg := NewConfig(t)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	known := jsonKeys(reflect.TypeOf(cfg).Elem())
	for k, v := range all {
		if known[k] {
			continue
		}
		base := cfg.Base()
		if base.Extra == nil {
			base.Extra = make(map[string]json.RawMessage)
		}
		base.Extra[k] = v
	}
	return cfg, nil
}

// EncodeConfig encodes cfg followed by its Extra keys in sorted order.
func EncodeConfig(cfg Config) ([]byte, error) {
	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	extra := cfg.Base().Extra
	if len(extra) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(out[:len(out)-1])
	first := bytes.Equal(out, []byte("{}"))
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PolicyOf returns the input policy declared by the node's config variant.
func PolicyOf(n *Node) InputPolicy {
	if p, ok := n.Config.(InputPolicer); ok {
		return p.InputPolicy()
	}
	return InputExclusive
}

// BranchesOf returns the declared branch names of a branching node.
func BranchesOf(n *Node) ([]string, bool) {
	b, ok := n.Config.(Brancher)
	if !ok {
		return nil, false
	}
	return b.Branches(), true
}

// jsonKeys collects the JSON field names of a struct type, descending into
// embedded structs.
func jsonKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && tag == "" {
			for k := range jsonKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
	return keys
}
