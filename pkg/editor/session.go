// Package editor exposes the edit commands of the canvas. Each command maps
// one to one onto a graph store operation; the session adds the connection
// gesture, per-node collapse state and run tracking, none of which are
// persisted.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ravi-parthasarathy/spur/pkg/graph"
	"github.com/ravi-parthasarathy/spur/pkg/handles"
	"github.com/ravi-parthasarathy/spur/pkg/llm"
	"github.com/ravi-parthasarathy/spur/pkg/routing"
	"github.com/ravi-parthasarathy/spur/pkg/run"
	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

var (
	ErrNoTrigger       = errors.New("no run trigger configured")
	ErrNotConnectable  = errors.New("handle is not connectable")
	ErrUnknownOutput   = errors.New("unknown output handle")
	ErrNoGesture       = errors.New("no connection in progress")
	ErrNoPreviewInputs = errors.New("no inputs to preview with")
)

// Option configures a Session.
type Option func(*Session)

// WithTrigger sets the engine runs are started on.
func WithTrigger(t run.Trigger) Option {
	return func(s *Session) { s.trigger = t }
}

// WithDefaultModel sets the model used by LLM previews of nodes that name none.
func WithDefaultModel(model string) Option {
	return func(s *Session) { s.defaultModel = model }
}

// Session is one user's editing session over a store.
type Session struct {
	store    *graph.Store
	meta     schema.Source
	resolver *handles.Resolver

	mu        sync.Mutex
	gesture   handles.Gesture
	collapsed map[string]bool

	trigger      run.Trigger
	defaultModel string
}

// NewSession creates a session over store. meta may be nil.
func NewSession(store *graph.Store, meta schema.Source, opts ...Option) *Session {
	s := &Session{
		store:     store,
		meta:      meta,
		resolver:  handles.NewResolver(store, meta),
		gesture:   handles.Inactive(),
		collapsed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Session) Store() *graph.Store { return s.store }

// CreateNode adds a node of type t at the given position. An empty title is
// replaced by a unique one derived from the type; a title another node
// already answers to is rejected.
func (s *Session) CreateNode(t workflow.NodeType, title string, at workflow.Coordinates) (*workflow.Node, error) {
	if title == "" {
		title = s.uniqueTitle(t)
	}
	n, err := s.store.AddNode(&workflow.Node{
		Type:        t,
		Title:       title,
		Config:      workflow.NewConfig(t),
		Coordinates: &at,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("node created", "node", n.ID, "type", t, "title", n.Title)
	return n, nil
}

func (s *Session) uniqueTitle(t workflow.NodeType) string {
	base := strings.TrimSuffix(string(t), "Node")
	if base == "" {
		base = "Node"
	}
	taken := make(map[string]bool)
	for _, n := range s.store.Nodes() {
		taken[workflow.OutputHandleID(n)] = true
		taken[n.ID] = true
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// DeleteNode removes a node and its edges. A gesture touching the node is
// cancelled.
func (s *Session) DeleteNode(id string) error {
	if err := s.store.RemoveNode(id); err != nil {
		return err
	}
	s.mu.Lock()
	if s.gesture.Source == id || s.gesture.Target == id {
		s.gesture = handles.Inactive()
	}
	delete(s.collapsed, id)
	s.mu.Unlock()
	return nil
}

// MoveNode sets the canvas position of a node.
func (s *Session) MoveNode(id string, at workflow.Coordinates) error {
	return s.store.MoveNode(id, at)
}

// AddEdge connects source to target. sourceHandle names the branch of a
// router; targetHandle may be empty to use the derived handle.
func (s *Session) AddEdge(source, sourceHandle, target, targetHandle string) (workflow.Edge, error) {
	return s.store.AddEdge(workflow.Edge{
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
	})
}

// RemoveEdge deletes an edge.
func (s *Session) RemoveEdge(id string) error {
	return s.store.RemoveEdge(id)
}

// RenameHandle renames a schema field or router branch. Empty or unchanged
// names are a no-op.
func (s *Session) RenameHandle(nodeID, oldKey, newKey string, side workflow.Side) error {
	return s.store.RenameHandle(nodeID, oldKey, newKey, side)
}

// RenameTitle retitles a node.
func (s *Session) RenameTitle(nodeID, title string) error {
	return s.store.RenameTitle(nodeID, title)
}

// EditConfigField sets one config value by dotted path.
func (s *Session) EditConfigField(nodeID, path string, value any) error {
	return s.store.SetConfigField(nodeID, path, value)
}

// UpdateConfig shallow-merges patch into a node's config.
func (s *Session) UpdateConfig(nodeID string, patch map[string]any) error {
	return s.store.UpdateNodeConfig(nodeID, patch)
}

// SetCollapsed toggles per-field rendering of a node.
func (s *Session) SetCollapsed(nodeID string, collapsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collapsed {
		s.collapsed[nodeID] = true
	} else {
		delete(s.collapsed, nodeID)
	}
}

// Handles resolves the handles of nodeID against the committed graph and the
// live gesture.
func (s *Session) Handles(nodeID string) (handles.NodeHandles, error) {
	s.mu.Lock()
	g := s.gesture
	opts := handles.Options{Collapsed: s.collapsed[nodeID]}
	s.mu.Unlock()
	return s.resolver.Resolve(nodeID, g, opts)
}

// Gesture returns the current connection gesture.
func (s *Session) Gesture() handles.Gesture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gesture
}

// BeginConnection starts dragging from an output handle. For routers
// outputHandle is the branch name; otherwise it is the node's single output
// handle id and may be left empty.
func (s *Session) BeginConnection(source, outputHandle string) error {
	n, ok := s.store.Node(source)
	if !ok {
		return fmt.Errorf("begin connection: %w: %q", graph.ErrNodeNotFound, source)
	}
	_, branching := workflow.BranchesOf(n)
	branch := ""
	if branching {
		branch = outputHandle
	} else if outputHandle == "" {
		outputHandle = workflow.OutputHandleID(n)
	}
	found := false
	for _, h := range handles.Outputs(n) {
		if h.ID == outputHandle && h.Connectable {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("begin connection from %q: %w %q", source, ErrUnknownOutput, outputHandle)
	}
	s.mu.Lock()
	s.gesture = handles.Begin(source, branch)
	s.mu.Unlock()
	return nil
}

// Hover marks target as the node under the pointer.
func (s *Session) Hover(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture = s.gesture.Hover(target)
}

// Leave clears the hovered target.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture = s.gesture.Leave()
}

// CancelConnection discards the gesture without touching the store.
func (s *Session) CancelConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture = handles.Inactive()
}

// DropConnection commits the previewed edge. The gesture ends whether or not
// the store accepts the edge.
func (s *Session) DropConnection() (workflow.Edge, error) {
	s.mu.Lock()
	g := s.gesture
	s.gesture = handles.Inactive()
	s.mu.Unlock()

	if !g.Active() {
		return workflow.Edge{}, ErrNoGesture
	}
	e, err := g.Edge(s.store)
	if err != nil {
		return workflow.Edge{}, err
	}
	ok, err := s.resolver.Connectable(e.Target, e.TargetHandle)
	if err != nil {
		return workflow.Edge{}, err
	}
	if !ok {
		return workflow.Edge{}, fmt.Errorf("drop on %q: %w: %q", e.Target, ErrNotConnectable, e.TargetHandle)
	}
	return s.store.AddEdge(e)
}

// PreviewRoute evaluates router routerID against data, or against the first
// test input of the document when data is nil.
func (s *Session) PreviewRoute(routerID string, data map[string]any) (string, []workflow.Edge, error) {
	n, ok := s.store.Node(routerID)
	if !ok {
		return "", nil, fmt.Errorf("preview route: %w: %q", graph.ErrNodeNotFound, routerID)
	}
	if data == nil {
		var err error
		if data, err = s.firstTestInput(); err != nil {
			return "", nil, err
		}
	}
	return routing.Fire(s.store, n, data)
}

// PreviewLLM renders the LLM call node nodeID and returns the request body
// its provider would receive.
func (s *Session) PreviewLLM(nodeID string, inputs map[string]any) (llm.Request, any, error) {
	n, ok := s.store.Node(nodeID)
	if !ok {
		return llm.Request{}, nil, fmt.Errorf("preview llm: %w: %q", graph.ErrNodeNotFound, nodeID)
	}
	if inputs == nil {
		var err error
		if inputs, err = s.firstTestInput(); err != nil {
			return llm.Request{}, nil, err
		}
	}
	req, err := llm.BuildRequest(n, inputs, s.defaultModel)
	if err != nil {
		return llm.Request{}, nil, err
	}
	body, err := llm.Preview(req)
	if err != nil {
		return req, nil, err
	}
	return req, body, nil
}

func (s *Session) firstTestInput() (map[string]any, error) {
	doc := s.store.Document()
	if len(doc.TestInputs) == 0 {
		return nil, ErrNoPreviewInputs
	}
	return doc.TestInputs[0], nil
}

// StartRun hands the committed document to the run trigger and follows its
// updates in the background until the run ends or ctx is done.
func (s *Session) StartRun(ctx context.Context) (*run.Tracker, error) {
	if s.trigger == nil {
		return nil, ErrNoTrigger
	}
	ch, err := s.trigger.Start(ctx, s.store.Document())
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	tracker := run.NewTracker()
	go func() {
		status, err := tracker.Follow(ctx, ch)
		if err != nil {
			slog.Warn("run updates stopped", "status", status, "err", err)
			return
		}
		slog.Info("run finished", "status", status)
	}()
	return tracker, nil
}
