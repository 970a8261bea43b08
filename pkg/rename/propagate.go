// Package rename computes the cascade of a schema key, branch or title rename
// as one Plan: the replacement nodes and edges that, applied together, keep
// every edge and every template placeholder in step with the new name.
//
// Planning is pure. The graph store applies a Plan in a single commit, so no
// reader ever sees the schema renamed while an edge still uses the old name.
package rename

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

var (
	ErrUnknownNode    = errors.New("node not found")
	ErrKeyExists      = errors.New("key already exists")
	ErrTitleCollision = errors.New("title collides with another node's handle")
)

// Graph is the read side of the graph a rename is planned against.
type Graph interface {
	Node(id string) (*workflow.Node, bool)
	Nodes() []*workflow.Node
	IncomingEdges(nodeID string) []workflow.Edge
	OutgoingEdges(nodeID string) []workflow.Edge
}

// Plan holds replacement nodes and edges, keyed by id.
type Plan struct {
	Nodes map[string]*workflow.Node
	Edges map[string]workflow.Edge
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return p == nil || (len(p.Nodes) == 0 && len(p.Edges) == 0)
}

// node returns the plan's working copy of id, cloning it on first use.
func (p *Plan) node(g Graph, id string) (*workflow.Node, bool) {
	if n, ok := p.Nodes[id]; ok {
		return n, true
	}
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	if p.Nodes == nil {
		p.Nodes = make(map[string]*workflow.Node)
	}
	c := n.Clone()
	p.Nodes[id] = c
	return c, true
}

// rewrite applies fn to the plan's copy of id. A node not yet in the plan is
// added only if fn reports a change.
func (p *Plan) rewrite(g Graph, id string, fn func(*workflow.Node) bool) {
	if n, ok := p.Nodes[id]; ok {
		fn(n)
		return
	}
	orig, ok := g.Node(id)
	if !ok || orig.Config == nil {
		return
	}
	c := orig.Clone()
	if !fn(c) {
		return
	}
	if p.Nodes == nil {
		p.Nodes = make(map[string]*workflow.Node)
	}
	p.Nodes[id] = c
}

func (p *Plan) edge(e workflow.Edge) {
	if p.Edges == nil {
		p.Edges = make(map[string]workflow.Edge)
	}
	p.Edges[e.ID] = e
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeKey trims s and replaces runs of whitespace with underscores.
func NormalizeKey(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), "_")
}

// Propagate plans renaming oldKey to newKey on side of nodeID.
//
// On the input side the schema key is renamed in place and every
// "{{ oldKey }}" placeholder in the node's templates is rewritten, along with
// edges whose target handle is oldKey. On the output side the schema key is
// renamed, edges whose source handle is oldKey follow, and every
// "{{ Title.oldKey }}" placeholder and output map reference is rewritten. For a
// branching node an output rename renames the branch itself.
//
// An empty or unchanged newKey, or an oldKey that is not declared, yields an
// empty plan.
func Propagate(g Graph, nodeID, oldKey, newKey string, side workflow.Side) (*Plan, error) {
	newKey = NormalizeKey(newKey)
	plan := &Plan{}
	if newKey == "" || newKey == oldKey {
		return plan, nil
	}
	orig, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if orig.Config == nil {
		return plan, nil
	}

	if _, branching := workflow.BranchesOf(orig); branching && side == workflow.SideOutput {
		return plan, renameBranch(g, plan, orig, oldKey, newKey)
	}

	base := orig.Config.Base()
	if !base.HasSchema(side) {
		return plan, nil
	}
	sch := base.Schema(side)
	if !sch.Has(oldKey) {
		return plan, nil
	}
	if !sch.RenameKey(oldKey, newKey) {
		return nil, fmt.Errorf("rename %s key %q on %q: %w: %q", side, oldKey, nodeID, ErrKeyExists, newKey)
	}

	n, _ := plan.node(g, nodeID)
	n.Config.Base().SetSchema(side, sch)

	if side == workflow.SideInput {
		for _, t := range n.Config.Templates() {
			*t.Text = workflow.RewritePlaceholder(*t.Text, oldKey, newKey)
		}
		for _, e := range g.IncomingEdges(nodeID) {
			if e.TargetHandle == oldKey {
				e.TargetHandle = newKey
				plan.edge(e)
			}
		}
		return plan, nil
	}

	prefix := workflow.OutputHandleID(orig)
	oldRef, newRef := prefix+"."+oldKey, prefix+"."+newKey
	for _, e := range g.OutgoingEdges(nodeID) {
		if e.SourceHandle == oldKey {
			e.SourceHandle = newKey
			plan.edge(e)
		}
	}
	// Any node may reference an upstream output by title, not only direct
	// successors.
	for _, other := range g.Nodes() {
		plan.rewrite(g, other.ID, func(n *workflow.Node) bool {
			changed := rewriteTemplates(n, func(s string) string {
				return workflow.RewritePlaceholder(s, oldRef, newRef)
			})
			return rewriteOutputMap(n, func(ref string) (string, bool) {
				return newRef, ref == oldRef
			}) || changed
		})
	}
	return plan, nil
}

func renameBranch(g Graph, plan *Plan, orig *workflow.Node, oldKey, newKey string) error {
	router, ok := orig.Config.(*workflow.RouterConfig)
	if !ok {
		return nil
	}
	at := -1
	for i, r := range router.Routes {
		switch r.Name {
		case oldKey:
			at = i
		case newKey:
			return fmt.Errorf("rename branch %q on %q: %w: %q", oldKey, orig.ID, ErrKeyExists, newKey)
		}
	}
	if at < 0 {
		return nil
	}
	n, _ := plan.node(g, orig.ID)
	n.Config.(*workflow.RouterConfig).Routes[at].Name = newKey

	oldHandle := workflow.BranchHandleID(orig.ID, oldKey)
	newHandle := workflow.BranchHandleID(orig.ID, newKey)
	for _, e := range g.OutgoingEdges(orig.ID) {
		if e.SourceHandle != oldKey {
			continue
		}
		e.SourceHandle = newKey
		if e.TargetHandle == oldHandle {
			e.TargetHandle = newHandle
		}
		plan.edge(e)
	}
	for _, other := range g.Nodes() {
		plan.rewrite(g, other.ID, func(n *workflow.Node) bool {
			return renamePreference(n, oldHandle, newHandle)
		})
	}
	return nil
}

// Title plans retitling nodeID. The node's output handle id changes with its
// title, so its outgoing non-branch edges follow, along with dotted
// placeholders, output maps and coalesce preferences naming it anywhere in
// the graph.
func Title(g Graph, nodeID, newTitle string) (*Plan, error) {
	newTitle = NormalizeKey(newTitle)
	plan := &Plan{}
	orig, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if newTitle == "" || newTitle == orig.Title {
		return plan, nil
	}
	if err := CheckTitle(g, nodeID, newTitle); err != nil {
		return nil, fmt.Errorf("retitle %q to %q: %w", nodeID, newTitle, err)
	}

	oldID := workflow.OutputHandleID(orig)
	n, _ := plan.node(g, nodeID)
	n.Title = newTitle
	newID := workflow.OutputHandleID(n)
	if oldID == newID {
		return plan, nil
	}

	_, branching := workflow.BranchesOf(orig)
	for _, e := range g.OutgoingEdges(nodeID) {
		// Branch handles are composed from the id, not the title.
		if !branching && e.TargetHandle == oldID {
			e.TargetHandle = newID
			plan.edge(e)
		}
	}
	for _, other := range g.Nodes() {
		plan.rewrite(g, other.ID, func(n *workflow.Node) bool {
			changed := rewriteTemplates(n, func(s string) string {
				return workflow.RewritePrefix(s, oldID, newID)
			})
			changed = rewriteOutputMap(n, func(ref string) (string, bool) {
				rest, found := strings.CutPrefix(ref, oldID+".")
				return newID + "." + rest, found
			}) || changed
			if !branching {
				changed = renamePreference(n, oldID, newID) || changed
			}
			return changed
		})
	}
	return plan, nil
}

// CheckTitle fails with ErrTitleCollision when handle is already the id or
// output handle id of a node other than nodeID.
func CheckTitle(g Graph, nodeID, handle string) error {
	for _, other := range g.Nodes() {
		if other.ID != nodeID && (workflow.OutputHandleID(other) == handle || other.ID == handle) {
			return fmt.Errorf("%w %q", ErrTitleCollision, other.ID)
		}
	}
	return nil
}

func rewriteTemplates(n *workflow.Node, fn func(string) string) bool {
	changed := false
	for _, t := range n.Config.Templates() {
		if s := fn(*t.Text); s != *t.Text {
			*t.Text = s
			changed = true
		}
	}
	return changed
}

// rewriteOutputMap replaces output map references for which fn reports a match.
func rewriteOutputMap(n *workflow.Node, fn func(ref string) (string, bool)) bool {
	out, ok := n.Config.(*workflow.OutputConfig)
	if !ok {
		return false
	}
	changed := false
	for field, ref := range out.OutputMap {
		if next, match := fn(ref); match && next != ref {
			out.OutputMap[field] = next
			changed = true
		}
	}
	return changed
}

func renamePreference(n *workflow.Node, oldID, newID string) bool {
	c, ok := n.Config.(*workflow.CoalesceConfig)
	if !ok {
		return false
	}
	changed := false
	for i, p := range c.Preferences {
		if p == oldID {
			c.Preferences[i] = newID
			changed = true
		}
	}
	return changed
}
