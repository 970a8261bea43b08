package workflow

import "strings"

// OutputHandleID is the identifier of a non-branching node's single output
// handle: its title, or its id when untitled.
func OutputHandleID(n *Node) string {
	return n.DisplayTitle()
}

// BranchHandleID composes the input handle identifier for an edge leaving
// branch of the branching node sourceID.
func BranchHandleID(sourceID, branch string) string {
	return sourceID + "." + branch
}

// InputHandleID derives the identifier of the input handle an edge from src
// lands on. Branch edges are keyed by source id and branch name so two
// branches of one router never collide.
func InputHandleID(src *Node, sourceHandle string) string {
	if _, ok := BranchesOf(src); ok && sourceHandle != "" {
		return BranchHandleID(src.ID, sourceHandle)
	}
	return OutputHandleID(src)
}

// Normalize fills in derived link fields of a loaded document: missing edge
// ids, missing target handles, and the composed target handle of links
// leaving a branching node.
// Legacy links that only carry "source.branch" in target_handle get their
// source_handle back.
func Normalize(d *Document) {
	for i := range d.Links {
		e := &d.Links[i]
		if src, ok := d.Node(e.Source); ok {
			if _, branching := BranchesOf(src); branching {
				if e.SourceHandle == "" && e.TargetHandle != "" {
					th := e.TargetHandle
					if idx := strings.LastIndex(th, "."); idx >= 0 {
						th = th[idx+1:]
					}
					e.SourceHandle = th
				}
				if e.SourceHandle != "" {
					e.TargetHandle = BranchHandleID(e.Source, e.SourceHandle)
				}
			}
			if e.TargetHandle == "" {
				e.TargetHandle = InputHandleID(src, e.SourceHandle)
			}
		}
		if e.ID == "" {
			e.ID = DefaultEdgeID(*e)
		}
	}
}
