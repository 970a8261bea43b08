package handles

import (
	"fmt"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// GestureState tags a Gesture.
type GestureState int

const (
	GestureInactive GestureState = iota
	GestureActive
)

// Gesture is the in-progress connection drag. It is either inactive, or active
// with a candidate source and, while hovering, a candidate target. A Gesture
// is a value: transitions return a new Gesture and never touch the store.
type Gesture struct {
	State        GestureState
	Source       string
	SourceHandle string
	Target       string
}

// Inactive is the idle gesture.
func Inactive() Gesture { return Gesture{} }

// Begin starts a drag from an output handle of source. sourceHandle is the
// branch name for routers and empty otherwise.
func Begin(source, sourceHandle string) Gesture {
	return Gesture{State: GestureActive, Source: source, SourceHandle: sourceHandle}
}

// Active reports whether a drag is underway.
func (g Gesture) Active() bool { return g.State == GestureActive }

// Hover records target as the candidate under the pointer.
func (g Gesture) Hover(target string) Gesture {
	if !g.Active() || target == g.Source {
		return g
	}
	g.Target = target
	return g
}

// Leave clears the candidate target.
func (g Gesture) Leave() Gesture {
	g.Target = ""
	return g
}

// Targets reports whether the gesture currently previews a connection into nodeID.
func (g Gesture) Targets(nodeID string) bool {
	return g.Active() && g.Target != "" && g.Target == nodeID
}

// Edge returns the edge a drop would commit. The target handle is derived
// with the same rule the resolver uses.
func (g Gesture) Edge(view View) (workflow.Edge, error) {
	if !g.Active() {
		return workflow.Edge{}, fmt.Errorf("no connection in progress")
	}
	if g.Target == "" {
		return workflow.Edge{}, fmt.Errorf("connection from %q has no target", g.Source)
	}
	src, ok := view.Node(g.Source)
	if !ok {
		return workflow.Edge{}, fmt.Errorf("connection source %q not found", g.Source)
	}
	return workflow.Edge{
		Source:       g.Source,
		Target:       g.Target,
		SourceHandle: g.SourceHandle,
		TargetHandle: workflow.InputHandleID(src, g.SourceHandle),
	}, nil
}
