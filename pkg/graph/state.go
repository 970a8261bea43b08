package graph

import "github.com/ravi-parthasarathy/spur/pkg/workflow"

// state is one immutable committed snapshot and its lookup indexes. It is
// never mutated after newState returns.
type state struct {
	doc       *workflow.Document
	nodes     map[string]*workflow.Node
	edgeIndex map[string]int
	in        map[string][]int
	out       map[string][]int
}

func newState(doc *workflow.Document) *state {
	st := &state{
		doc:       doc,
		nodes:     make(map[string]*workflow.Node, len(doc.Nodes)),
		edgeIndex: make(map[string]int, len(doc.Links)),
		in:        make(map[string][]int),
		out:       make(map[string][]int),
	}
	for _, n := range doc.Nodes {
		st.nodes[n.ID] = n
	}
	for i, e := range doc.Links {
		st.edgeIndex[e.ID] = i
		st.out[e.Source] = append(st.out[e.Source], i)
		st.in[e.Target] = append(st.in[e.Target], i)
	}
	return st
}

func (st *state) Node(id string) (*workflow.Node, bool) {
	n, ok := st.nodes[id]
	return n, ok
}

func (st *state) Nodes() []*workflow.Node {
	return st.doc.Nodes
}

func (st *state) IncomingEdges(nodeID string) []workflow.Edge {
	return st.edges(st.in[nodeID])
}

func (st *state) OutgoingEdges(nodeID string) []workflow.Edge {
	return st.edges(st.out[nodeID])
}

func (st *state) edges(idx []int) []workflow.Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]workflow.Edge, len(idx))
	for i, j := range idx {
		out[i] = st.doc.Links[j]
	}
	return out
}
