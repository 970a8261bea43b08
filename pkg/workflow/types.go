// Package workflow defines the persisted shape of a spur: typed nodes, the
// handle-addressed links between them, and the codecs that load and save a
// document without adding derived state.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// NodeType selects a node variant and, through it, the config shape.
type NodeType string

const (
	NodeTypeInput    NodeType = "InputNode"
	NodeTypeOutput   NodeType = "OutputNode"
	NodeTypeLLMCall  NodeType = "SingleLLMCallNode"
	NodeTypeRouter   NodeType = "RouterNode"
	NodeTypeCoalesce NodeType = "CoalesceNode"
	NodeTypeMerge    NodeType = "MergeNode"
	NodeTypeScraper  NodeType = "FirecrawlScrapeNode"
)

// SpurType tells the editor how the workflow is surfaced to end users.
type SpurType string

const (
	SpurTypeWorkflow SpurType = "workflow"
	SpurTypeChatbot  SpurType = "chatbot"
	SpurTypeAgent    SpurType = "agent"
)

// Coordinates is a node position on the canvas.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is the rendered size of a node.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a vertex in the graph.
type Node struct {
	ID          string       `json:"id" validate:"required"`
	Title       string       `json:"title"`
	ParentID    string       `json:"parent_id,omitempty"`
	Type        NodeType     `json:"node_type" validate:"required"`
	Config      Config       `json:"-"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Dimensions  *Dimensions  `json:"dimensions,omitempty"`
	Subworkflow *Document    `json:"subworkflow,omitempty"`
}

// DisplayTitle returns the title, or the id when the title is blank.
func (n *Node) DisplayTitle() string {
	if strings.TrimSpace(n.Title) != "" {
		return n.Title
	}
	return n.ID
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	if n.Config != nil {
		out.Config = n.Config.Clone()
	}
	if n.Coordinates != nil {
		c := *n.Coordinates
		out.Coordinates = &c
	}
	if n.Dimensions != nil {
		d := *n.Dimensions
		out.Dimensions = &d
	}
	if n.Subworkflow != nil {
		out.Subworkflow = n.Subworkflow.Clone()
	}
	return &out
}

// nodeJSON is the wire form of Node with the config left raw.
type nodeJSON struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	ParentID    string          `json:"parent_id,omitempty"`
	Type        NodeType        `json:"node_type"`
	Config      json.RawMessage `json:"config"`
	Coordinates *Coordinates    `json:"coordinates,omitempty"`
	Dimensions  *Dimensions     `json:"dimensions,omitempty"`
	Subworkflow *Document       `json:"subworkflow,omitempty"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	cfg := n.Config
	if cfg == nil {
		cfg = NewConfig(n.Type)
	}
	raw, err := EncodeConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("node %q config: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{
		ID:          n.ID,
		Title:       n.Title,
		ParentID:    n.ParentID,
		Type:        n.Type,
		Config:      raw,
		Coordinates: n.Coordinates,
		Dimensions:  n.Dimensions,
		Subworkflow: n.Subworkflow,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w nodeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		// Older documents spell the discriminator "type".
		w.Type = NodeType(gjson.GetBytes(data, "type").String())
	}
	cfg, err := DecodeConfig(w.Type, w.Config)
	if err != nil {
		return fmt.Errorf("node %q: %w", w.ID, err)
	}
	*n = Node{
		ID:          w.ID,
		Title:       w.Title,
		ParentID:    w.ParentID,
		Type:        w.Type,
		Config:      cfg,
		Coordinates: w.Coordinates,
		Dimensions:  w.Dimensions,
		Subworkflow: w.Subworkflow,
	}
	return nil
}

// Edge is a directed, handle-addressed connection between two nodes.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source_id" validate:"required"`
	Target       string `json:"target_id" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// DefaultEdgeID derives a stable id for an edge loaded without one.
func DefaultEdgeID(e Edge) string {
	id := e.Source
	if e.SourceHandle != "" {
		id += ":" + e.SourceHandle
	}
	return id + "->" + e.Target + ":" + e.TargetHandle
}

// Document is one saved workflow.
type Document struct {
	Nodes      []*Node          `json:"nodes" validate:"dive"`
	Links      []Edge           `json:"links" validate:"dive"`
	TestInputs []map[string]any `json:"test_inputs,omitempty"`
	SpurType   SpurType         `json:"spur_type,omitempty" validate:"omitempty,oneof=workflow chatbot agent"`
}

// Node returns the node with the given id.
func (d *Document) Node(id string) (*Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (d *Document) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Links {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges arriving at nodeID, in definition order.
func (d *Document) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Links {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{SpurType: d.SpurType}
	if d.Nodes != nil {
		out.Nodes = make([]*Node, len(d.Nodes))
		for i, n := range d.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if d.Links != nil {
		out.Links = make([]Edge, len(d.Links))
		copy(out.Links, d.Links)
	}
	for _, in := range d.TestInputs {
		out.TestInputs = append(out.TestInputs, cloneMap(in))
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
