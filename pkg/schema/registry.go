// Package schema is the node-type catalog: for every node type it holds the
// declared input and output property metadata the canvas renders as fields.
//
// The registry is read-only input to handle resolution. Unknown types and
// missing metadata resolve to an empty schema so rendering and connecting
// degrade to "no declared fields" instead of failing.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// Source supplies property metadata per node type and side.
type Source interface {
	PropertyMetadata(t workflow.NodeType, side workflow.Side) workflow.Schema
}

// TypeSpec describes one node type in the catalog.
type TypeSpec struct {
	Type        workflow.NodeType
	DisplayName string
	Category    string
	Input       workflow.Schema
	Output      workflow.Schema
	// DynamicInput and DynamicOutput mark sides whose fields come from the
	// node's own config rather than from the catalog.
	DynamicInput  bool
	DynamicOutput bool
}

// Registry is a concurrency-safe catalog of TypeSpecs.
type Registry struct {
	mu    sync.RWMutex
	specs map[workflow.NodeType]TypeSpec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[workflow.NodeType]TypeSpec)}
}

// Register adds or replaces the spec for spec.Type.
func (r *Registry) Register(spec TypeSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec.Input = spec.Input.Clone()
	spec.Output = spec.Output.Clone()
	r.specs[spec.Type] = spec
}

// RegisterJSONSchema sets the metadata of one side of t from a JSON schema
// document, registering a bare spec first if t is unknown.
func (r *Registry) RegisterJSONSchema(t workflow.NodeType, side workflow.Side, raw string) error {
	props, err := FromJSONSchema(raw)
	if err != nil {
		return fmt.Errorf("node type %s %s schema: %w", t, side, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[t]
	if !ok {
		spec = TypeSpec{Type: t, DisplayName: string(t)}
	}
	if side == workflow.SideInput {
		spec.Input = props
	} else {
		spec.Output = props
	}
	r.specs[t] = spec
	return nil
}

// Spec returns the spec registered for t.
func (r *Registry) Spec(t workflow.NodeType) (TypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[t]
	if !ok {
		return TypeSpec{}, false
	}
	spec.Input = spec.Input.Clone()
	spec.Output = spec.Output.Clone()
	return spec, true
}

// Types lists the registered node types in sorted order.
func (r *Registry) Types() []workflow.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]workflow.NodeType, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PropertyMetadata returns the declared fields of t on side. Unknown types
// yield an empty schema.
func (r *Registry) PropertyMetadata(t workflow.NodeType, side workflow.Side) workflow.Schema {
	spec, ok := r.Spec(t)
	if !ok {
		return workflow.Schema{}
	}
	if side == workflow.SideInput {
		return spec.Input
	}
	return spec.Output
}

// Effective returns the fields a node exposes on side. A schema declared in
// the node's config wins, then a fixed output JSON schema, then the catalog.
func Effective(src Source, n *workflow.Node, side workflow.Side) workflow.Schema {
	if n.Config != nil {
		base := n.Config.Base()
		if base.HasSchema(side) {
			return base.Schema(side)
		}
		if side == workflow.SideOutput && base.OutputJSONSchema != "" {
			if s, err := FromJSONSchema(base.OutputJSONSchema); err == nil {
				return s
			}
		}
	}
	if src == nil {
		return workflow.Schema{}
	}
	return src.PropertyMetadata(n.Type, side)
}

// structural keywords that never name a field.
var structuralKeys = map[string]bool{
	"required": true,
	"title":    true,
	"type":     true,
}

// FromJSONSchema turns a JSON schema object into ordered field metadata. The
// fields are read from "properties" when present; otherwise the object's own
// keys are used minus the structural keywords.
func FromJSONSchema(raw string) (workflow.Schema, error) {
	if !gjson.Valid(raw) {
		return workflow.Schema{}, fmt.Errorf("invalid JSON schema")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return workflow.Schema{}, fmt.Errorf("JSON schema must be an object")
	}
	props := root
	if p := root.Get("properties"); p.Exists() {
		props = p
	}
	var out workflow.Schema
	props.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if props.Raw == root.Raw && structuralKeys[name] {
			return true
		}
		out.Set(name, descriptorOf(value))
		return true
	})
	return out, nil
}

// descriptorOf maps a JSON schema property to a type descriptor.
func descriptorOf(prop gjson.Result) string {
	if prop.Type == gjson.String {
		return prop.String()
	}
	if ref := prop.Get("$ref"); ref.Exists() {
		return "dict"
	}
	if anyOf := prop.Get("anyOf"); anyOf.IsArray() {
		for _, alt := range anyOf.Array() {
			if alt.Get("type").String() != "null" {
				return descriptorOf(alt)
			}
		}
	}
	switch prop.Get("type").String() {
	case "string":
		return "str"
	case "integer":
		return "int"
	case "number":
		return "float"
	case "boolean":
		return "bool"
	case "array":
		if items := prop.Get("items"); items.Exists() {
			return "list[" + descriptorOf(items) + "]"
		}
		return "list"
	case "object":
		return "dict"
	default:
		return "str"
	}
}
