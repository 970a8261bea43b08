// Package handles derives the connection points of a node from the committed
// graph, the schema catalog and the connection gesture in progress.
//
// Handles are never stored. Every call recomputes them from current state;
// the work is bounded by the node's in-degree, so it is cheap enough to run
// on every pointer move during a drag. Two calls without an intervening
// change return identical lists.
package handles

import (
	"fmt"

	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// View is the read side of the graph the resolver needs.
type View interface {
	Node(id string) (*workflow.Node, bool)
	IncomingEdges(nodeID string) []workflow.Edge
}

// Handle is a derived connection point.
type Handle struct {
	Side        workflow.Side
	ID          string
	Label       string
	Connectable bool
	// Preview marks an input handle that only exists because of the gesture.
	Preview bool
}

// FieldRow is one schema field rendered on a node.
type FieldRow struct {
	Side workflow.Side
	Name string
	Type string
}

// NodeHandles is the full derived view of one node.
type NodeHandles struct {
	NodeID  string
	Inputs  []Handle
	Outputs []Handle
	// Fields is empty while the node is collapsed.
	Fields []FieldRow
}

// Options carries UI state that shapes the result but is never persisted.
type Options struct {
	Collapsed bool
}

// Resolver computes handles for nodes of one graph.
type Resolver struct {
	view View
	meta schema.Source
}

// NewResolver creates a Resolver over view. meta may be nil.
func NewResolver(view View, meta schema.Source) *Resolver {
	return &Resolver{view: view, meta: meta}
}

// Resolve returns every handle and field row of nodeID.
func (r *Resolver) Resolve(nodeID string, g Gesture, opts Options) (NodeHandles, error) {
	n, ok := r.view.Node(nodeID)
	if !ok {
		return NodeHandles{}, fmt.Errorf("node %q not found", nodeID)
	}
	inputs, err := r.Inputs(nodeID, g)
	if err != nil {
		return NodeHandles{}, err
	}
	out := NodeHandles{
		NodeID:  nodeID,
		Inputs:  inputs,
		Outputs: Outputs(n),
	}
	if !opts.Collapsed {
		for _, side := range []workflow.Side{workflow.SideInput, workflow.SideOutput} {
			for _, f := range schema.Effective(r.meta, n, side).Fields() {
				out.Fields = append(out.Fields, FieldRow{Side: side, Name: f.Name, Type: f.Type})
			}
		}
	}
	return out, nil
}

// Inputs returns the input handles of nodeID: one per distinct predecessor
// (or predecessor branch), in discovery order, plus a preview handle when the
// gesture targets the node with a source not yet connected.
func (r *Resolver) Inputs(nodeID string, g Gesture) ([]Handle, error) {
	target, ok := r.view.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("node %q not found", nodeID)
	}
	tolerant := workflow.PolicyOf(target) == workflow.InputBranchTolerant

	var out []Handle
	index := make(map[string]int)
	add := func(h Handle) {
		if _, dup := index[h.ID]; dup {
			return
		}
		index[h.ID] = len(out)
		out = append(out, h)
	}

	represented := false
	for _, e := range r.view.IncomingEdges(nodeID) {
		src, ok := r.view.Node(e.Source)
		if !ok {
			continue
		}
		if e.Source == g.Source && workflow.InputHandleID(src, e.SourceHandle) == workflow.InputHandleID(src, g.SourceHandle) {
			represented = true
		}
		id := e.TargetHandle
		if id == "" {
			id = workflow.InputHandleID(src, e.SourceHandle)
		}
		add(Handle{
			Side:  workflow.SideInput,
			ID:    id,
			Label: inputLabel(src, e.SourceHandle),
			// Occupied handles reject new drags unless branches may converge.
			Connectable: tolerant,
		})
	}

	// A source already wired in gets no preview, even on a field handle.
	if g.Targets(nodeID) && !represented {
		if src, ok := r.view.Node(g.Source); ok {
			add(Handle{
				Side:        workflow.SideInput,
				ID:          workflow.InputHandleID(src, g.SourceHandle),
				Label:       inputLabel(src, g.SourceHandle),
				Connectable: true,
				Preview:     true,
			})
		}
	}
	return out, nil
}

// Outputs returns the output handles of n: one per branch for branching
// nodes, otherwise a single handle named by the node's title or id. Output
// handles stay connectable regardless of existing edges.
func Outputs(n *workflow.Node) []Handle {
	if branches, ok := workflow.BranchesOf(n); ok {
		out := make([]Handle, 0, len(branches))
		for _, b := range branches {
			out = append(out, Handle{
				Side:        workflow.SideOutput,
				ID:          b,
				Label:       b,
				Connectable: true,
			})
		}
		return out
	}
	id := workflow.OutputHandleID(n)
	return []Handle{{Side: workflow.SideOutput, ID: id, Label: id, Connectable: true}}
}

// Connectable reports whether a new edge may land on input handle id of
// nodeID given the committed edges.
func (r *Resolver) Connectable(nodeID, id string) (bool, error) {
	inputs, err := r.Inputs(nodeID, Inactive())
	if err != nil {
		return false, err
	}
	for _, h := range inputs {
		if h.ID == id {
			return h.Connectable, nil
		}
	}
	return true, nil
}

// IDs returns the identifiers of hs in order.
func IDs(hs []Handle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.ID
	}
	return out
}

func inputLabel(src *workflow.Node, sourceHandle string) string {
	if _, ok := workflow.BranchesOf(src); ok && sourceHandle != "" {
		return src.DisplayTitle() + "." + sourceHandle
	}
	return src.DisplayTitle()
}
