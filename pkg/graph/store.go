// Package graph holds the committed node and edge state of one spur.
//
// Every mutation builds a complete next document, verifies it, and swaps it
// in under the write lock. Readers never observe a partially applied change,
// and a rejected mutation leaves the store untouched.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/ravi-parthasarathy/spur/pkg/rename"
	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

var (
	ErrNodeNotFound       = errors.New("node not found")
	ErrDuplicateNode      = errors.New("duplicate node id")
	ErrEdgeNotFound       = errors.New("edge not found")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrDanglingReference  = errors.New("dangling reference")
	ErrHandleOccupied     = errors.New("input handle already connected")
	ErrUnknownHandle      = errors.New("unknown handle")
	ErrSelfLoop           = errors.New("edge connects a node to itself")
	ErrInvalidConfigPatch = errors.New("invalid config patch")
)

// Store is a concurrency-safe, copy-on-write graph.
type Store struct {
	mu      sync.RWMutex
	st      *state
	meta    schema.Source
	version uint64

	// notified is the last version delivered to subscribers. Commits wait
	// on turn for their predecessor, so delivery follows version order.
	notifyMu sync.Mutex
	turn     *sync.Cond
	notified uint64

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// New creates an empty store. meta supplies catalog schemas for handle
// checks and may be nil.
func New(meta schema.Source) *Store {
	s := &Store{
		st:   newState(&workflow.Document{}),
		meta: meta,
		subs: make(map[int]func(Change)),
	}
	s.turn = sync.NewCond(&s.notifyMu)
	return s
}

// Load creates a store holding doc. The document is normalized and verified
// first; doc itself is not retained.
func Load(doc *workflow.Document, meta schema.Source) (*Store, error) {
	s := New(meta)
	if err := s.Replace(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps in a whole new document.
func (s *Store) Replace(doc *workflow.Document) error {
	next := doc.Clone()
	workflow.Normalize(next)
	return s.commit(func(*state, *Change) (*workflow.Document, error) { return next, nil },
		Change{Kind: ChangeLoaded})
}

// Version counts committed changes. No-op mutations do not advance it.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Document returns a deep copy of the committed document.
func (s *Store) Document() *workflow.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.doc.Clone()
}

// Node returns a copy of the node with id.
func (s *Store) Node(id string) (*workflow.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.Node(id)
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in document order.
func (s *Store) Nodes() []*workflow.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Node, len(s.st.doc.Nodes))
	for i, n := range s.st.doc.Nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns all edges in document order.
func (s *Store) Edges() []workflow.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]workflow.Edge(nil), s.st.doc.Links...)
}

// IncomingEdges returns the edges arriving at nodeID in document order.
func (s *Store) IncomingEdges(nodeID string) []workflow.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.IncomingEdges(nodeID)
}

// OutgoingEdges returns the edges leaving nodeID in document order.
func (s *Store) OutgoingEdges(nodeID string) []workflow.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.OutgoingEdges(nodeID)
}

// AddNode inserts n. A missing id is generated and a missing config is
// replaced by the zero variant of n's type. The node's output handle id must
// not already belong to another node. It returns the stored copy.
func (s *Store) AddNode(n *workflow.Node) (*workflow.Node, error) {
	add := n.Clone()
	if add.ID == "" {
		add.ID = uuid.NewString()
	}
	if add.Config == nil {
		add.Config = workflow.NewConfig(add.Type)
	}
	err := s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		if _, ok := st.Node(add.ID); ok {
			return nil, fmt.Errorf("add node: %w: %q", ErrDuplicateNode, add.ID)
		}
		if err := rename.CheckTitle(st, add.ID, workflow.OutputHandleID(add)); err != nil {
			return nil, fmt.Errorf("add node %q: %w", add.ID, err)
		}
		next := st.doc.Clone()
		next.Nodes = append(next.Nodes, add.Clone())
		return next, nil
	}, Change{Kind: ChangeNodeAdded, NodeIDs: []string{add.ID}})
	if err != nil {
		return nil, err
	}
	return add, nil
}

// RemoveNode deletes nodeID and every edge touching it.
func (s *Store) RemoveNode(nodeID string) error {
	var removed []string
	err := s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		removed = removed[:0]
		if _, ok := st.Node(nodeID); !ok {
			return nil, fmt.Errorf("remove node: %w: %q", ErrNodeNotFound, nodeID)
		}
		next := st.doc.Clone()
		nodes := next.Nodes[:0]
		for _, n := range next.Nodes {
			if n.ID != nodeID {
				nodes = append(nodes, n)
			}
		}
		next.Nodes = nodes
		links := next.Links[:0]
		for _, e := range next.Links {
			if e.Source == nodeID || e.Target == nodeID {
				removed = append(removed, e.ID)
				continue
			}
			links = append(links, e)
		}
		next.Links = links
		c.EdgeIDs = removed
		return next, nil
	}, Change{Kind: ChangeNodeRemoved, NodeIDs: []string{nodeID}})
	if err == nil && len(removed) > 0 {
		slog.Debug("removed edges with node", "node", nodeID, "edges", removed)
	}
	return err
}

// MoveNode sets the canvas position of nodeID.
func (s *Store) MoveNode(nodeID string, at workflow.Coordinates) error {
	return s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		next := st.doc.Clone()
		n, ok := next.Node(nodeID)
		if !ok {
			return nil, fmt.Errorf("move node: %w: %q", ErrNodeNotFound, nodeID)
		}
		if n.Coordinates != nil && *n.Coordinates == at {
			return nil, nil
		}
		n.Coordinates = &at
		return next, nil
	}, Change{Kind: ChangeNodeMoved, NodeIDs: []string{nodeID}})
}

// UpdateNodeConfig shallow-merges patch into the config of nodeID. A nil
// value deletes the key. Keys the config variant does not model are kept.
func (s *Store) UpdateNodeConfig(nodeID string, patch map[string]any) error {
	return s.editConfig(nodeID, func(raw []byte) ([]byte, error) {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		for k, v := range patch {
			if v == nil {
				delete(m, k)
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = b
		}
		return json.Marshal(m)
	})
}

// SetConfigField sets one value in the config of nodeID. path uses dotted
// gjson syntax, so "llm_info.temperature" or "routes.0.when" address nested
// values.
func (s *Store) SetConfigField(nodeID, path string, value any) error {
	return s.editConfig(nodeID, func(raw []byte) ([]byte, error) {
		return sjson.SetBytes(raw, path, value)
	})
}

func (s *Store) editConfig(nodeID string, edit func([]byte) ([]byte, error)) error {
	return s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		next := st.doc.Clone()
		n, ok := next.Node(nodeID)
		if !ok {
			return nil, fmt.Errorf("update config: %w: %q", ErrNodeNotFound, nodeID)
		}
		raw, err := workflow.EncodeConfig(n.Config)
		if err != nil {
			return nil, fmt.Errorf("update config of %q: %w", nodeID, err)
		}
		edited, err := edit(raw)
		if err != nil {
			return nil, fmt.Errorf("update config of %q: %w: %v", nodeID, ErrInvalidConfigPatch, err)
		}
		cfg, err := workflow.DecodeConfig(n.Type, edited)
		if err != nil {
			return nil, fmt.Errorf("update config of %q: %w: %v", nodeID, ErrInvalidConfigPatch, err)
		}
		after, err := workflow.EncodeConfig(cfg)
		if err == nil && string(after) == string(raw) {
			return nil, nil
		}
		n.Config = cfg
		return next, nil
	}, Change{Kind: ChangeNodeUpdated, NodeIDs: []string{nodeID}})
}

// AddEdge commits e. An empty id is generated and an empty target handle is
// derived from the source. Target handle checks run in verify, like for every
// other commit. It returns the stored edge.
func (s *Store) AddEdge(e workflow.Edge) (workflow.Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		src, ok := st.Node(e.Source)
		if !ok {
			return nil, fmt.Errorf("add edge: source %w: %q", ErrNodeNotFound, e.Source)
		}
		dst, ok := st.Node(e.Target)
		if !ok {
			return nil, fmt.Errorf("add edge: target %w: %q", ErrNodeNotFound, e.Target)
		}
		if src.ID == dst.ID {
			return nil, fmt.Errorf("add edge on %q: %w", src.ID, ErrSelfLoop)
		}
		if err := s.checkSourceHandle(src, e.SourceHandle); err != nil {
			return nil, err
		}
		if e.TargetHandle == "" {
			e.TargetHandle = workflow.InputHandleID(src, e.SourceHandle)
		}
		if _, ok := st.edgeIndex[e.ID]; ok {
			return nil, fmt.Errorf("add edge: %w id %q", ErrDuplicateEdge, e.ID)
		}
		next := st.doc.Clone()
		next.Links = append(next.Links, e)
		return next, nil
	}, Change{Kind: ChangeEdgeAdded, EdgeIDs: []string{e.ID}})
	if err != nil {
		return workflow.Edge{}, err
	}
	return e, nil
}

func (s *Store) checkSourceHandle(src *workflow.Node, handle string) error {
	if branches, ok := workflow.BranchesOf(src); ok {
		for _, b := range branches {
			if b == handle {
				return nil
			}
		}
		return fmt.Errorf("add edge from %q: %w: branch %q", src.ID, ErrUnknownHandle, handle)
	}
	if handle == "" || handle == workflow.OutputHandleID(src) {
		return nil
	}
	if schema.Effective(s.meta, src, workflow.SideOutput).Has(handle) {
		return nil
	}
	return fmt.Errorf("add edge from %q: %w %q", src.ID, ErrUnknownHandle, handle)
}

// RemoveEdge deletes the edge with id.
func (s *Store) RemoveEdge(edgeID string) error {
	return s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		i, ok := st.edgeIndex[edgeID]
		if !ok {
			return nil, fmt.Errorf("remove edge: %w: %q", ErrEdgeNotFound, edgeID)
		}
		next := st.doc.Clone()
		next.Links = append(next.Links[:i], next.Links[i+1:]...)
		return next, nil
	}, Change{Kind: ChangeEdgeRemoved, EdgeIDs: []string{edgeID}})
}

// RenameHandle renames a schema key, or a branch, of nodeID and every
// reference to it in one commit. An empty or unchanged name, or an unknown
// old key, changes nothing.
func (s *Store) RenameHandle(nodeID, oldKey, newKey string, side workflow.Side) error {
	return s.applyPlan(nodeID, func(st *state) (*rename.Plan, error) {
		return rename.Propagate(st, nodeID, oldKey, newKey, side)
	})
}

// RenameTitle retitles nodeID and rewrites references to its output handle.
func (s *Store) RenameTitle(nodeID, title string) error {
	return s.applyPlan(nodeID, func(st *state) (*rename.Plan, error) {
		return rename.Title(st, nodeID, title)
	})
}

func (s *Store) applyPlan(nodeID string, plan func(*state) (*rename.Plan, error)) error {
	var touched, edges []string
	err := s.commit(func(st *state, c *Change) (*workflow.Document, error) {
		if _, ok := st.Node(nodeID); !ok {
			return nil, fmt.Errorf("rename: %w: %q", ErrNodeNotFound, nodeID)
		}
		p, err := plan(st)
		if err != nil {
			return nil, err
		}
		if p.Empty() {
			return nil, nil
		}
		next := st.doc.Clone()
		for i, n := range next.Nodes {
			if r, ok := p.Nodes[n.ID]; ok {
				next.Nodes[i] = r.Clone()
				touched = append(touched, n.ID)
			}
		}
		for i, e := range next.Links {
			if r, ok := p.Edges[e.ID]; ok {
				next.Links[i] = r
				edges = append(edges, e.ID)
			}
		}
		c.NodeIDs, c.EdgeIDs = touched, edges
		return next, nil
	}, Change{Kind: ChangeRenamed, NodeIDs: []string{nodeID}})
	if err == nil && len(touched)+len(edges) > 0 {
		slog.Debug("rename propagated", "node", nodeID, "nodes", touched, "edges", edges)
	}
	return err
}

// commit runs build against the current state under the write lock. A nil
// document from build means nothing changed. Otherwise the document is
// verified and swapped in. Subscribers are notified after the write lock is
// released, once every earlier version has been delivered.
func (s *Store) commit(build func(*state, *Change) (*workflow.Document, error), c Change) error {
	s.mu.Lock()
	next, err := build(s.st, &c)
	if err != nil || next == nil {
		s.mu.Unlock()
		return err
	}
	if err := s.verify(next); err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.st
	s.st = newState(next)
	s.version++
	c.Affected = affected(c, prev, s.st)
	c.Version = s.version
	s.mu.Unlock()

	slog.Debug("graph commit", "change", c.Kind, "version", c.Version, "nodes", c.NodeIDs, "edges", c.EdgeIDs)
	s.notifyMu.Lock()
	for s.notified != c.Version-1 {
		s.turn.Wait()
	}
	s.notifyMu.Unlock()
	s.notify(c)
	s.notifyMu.Lock()
	s.notified = c.Version
	s.turn.Broadcast()
	s.notifyMu.Unlock()
	return nil
}

// verify checks the invariants every committed document keeps: unique node
// and edge ids, edges whose endpoints exist, branch edges that name a
// declared branch, target handles the target actually resolves, and at most
// one edge per input handle unless the target tolerates converging branches.
func (s *Store) verify(doc *workflow.Document) error {
	nodes := make(map[string]*workflow.Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		nodes[n.ID] = n
	}
	type slot struct{ target, handle string }
	type link struct {
		at                   slot
		source, sourceHandle string
	}
	edges := make(map[string]bool, len(doc.Links))
	occupied := make(map[slot]string)
	connected := make(map[link]string)
	inputs := make(map[string]workflow.Schema)
	for _, e := range doc.Links {
		if edges[e.ID] {
			return fmt.Errorf("%w id %q", ErrDuplicateEdge, e.ID)
		}
		edges[e.ID] = true
		src, ok := nodes[e.Source]
		if !ok {
			return fmt.Errorf("%w: edge %q source %q", ErrDanglingReference, e.ID, e.Source)
		}
		dst, ok := nodes[e.Target]
		if !ok {
			return fmt.Errorf("%w: edge %q target %q", ErrDanglingReference, e.ID, e.Target)
		}
		if src.ID == dst.ID {
			return fmt.Errorf("edge %q on %q: %w", e.ID, src.ID, ErrSelfLoop)
		}
		if branches, ok := workflow.BranchesOf(src); ok && !contains(branches, e.SourceHandle) {
			return fmt.Errorf("%w: edge %q uses undeclared branch %q of %q", ErrDanglingReference, e.ID, e.SourceHandle, e.Source)
		}

		if e.TargetHandle != workflow.InputHandleID(src, e.SourceHandle) {
			in, ok := inputs[dst.ID]
			if !ok {
				in = schema.Effective(s.meta, dst, workflow.SideInput)
				inputs[dst.ID] = in
			}
			if !in.Has(e.TargetHandle) {
				return fmt.Errorf("edge %q into %q: %w %q", e.ID, dst.ID, ErrUnknownHandle, e.TargetHandle)
			}
		}

		at := slot{dst.ID, e.TargetHandle}
		key := link{at, e.Source, e.SourceHandle}
		if prev, dup := connected[key]; dup {
			return fmt.Errorf("%w: %s already connects %s to %s", ErrDuplicateEdge, prev, e.Source, e.Target)
		}
		connected[key] = e.ID
		prev, taken := occupied[at]
		if !taken {
			occupied[at] = e.ID
		} else if workflow.PolicyOf(dst) != workflow.InputBranchTolerant {
			return fmt.Errorf("edge %q into %q: %w: %q held by %s", e.ID, dst.ID, ErrHandleOccupied, e.TargetHandle, prev)
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
