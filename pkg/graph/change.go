package graph

// ChangeKind names what a commit did.
type ChangeKind string

const (
	ChangeLoaded      ChangeKind = "loaded"
	ChangeNodeAdded   ChangeKind = "node_added"
	ChangeNodeRemoved ChangeKind = "node_removed"
	ChangeNodeMoved   ChangeKind = "node_moved"
	ChangeNodeUpdated ChangeKind = "node_updated"
	ChangeEdgeAdded   ChangeKind = "edge_added"
	ChangeEdgeRemoved ChangeKind = "edge_removed"
	ChangeRenamed     ChangeKind = "renamed"
)

// Change describes one committed mutation.
type Change struct {
	Kind    ChangeKind
	Version uint64
	NodeIDs []string
	EdgeIDs []string
	// Affected lists the nodes whose handles may have changed: NodeIDs plus
	// both endpoints of every edge in EdgeIDs. Subscribers recompute only these.
	Affected []string
}

func affected(c Change, before, after *state) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range c.NodeIDs {
		add(id)
	}
	for _, id := range c.EdgeIDs {
		for _, st := range []*state{before, after} {
			if i, ok := st.edgeIndex[id]; ok {
				add(st.doc.Links[i].Source)
				add(st.doc.Links[i].Target)
			}
		}
	}
	return out
}

// Subscribe registers fn to be called after every commit, in version order.
// fn runs on the committing goroutine without the store lock held, so it may
// read the store, but it must not call a mutating store method. The returned
// func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
