// Package routing implements the runtime meaning of branching and converging
// nodes: a router fires exactly one branch, a coalesce node surfaces the one
// value its mutually exclusive branches produced, and a merge node combines
// every predecessor's value.
package routing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

var (
	ErrNotRouter       = errors.New("node is not a router")
	ErrNoRouteMatched  = errors.New("no route matched")
	ErrNothingProduced = errors.New("no upstream branch produced a value")
)

// SelectBranch returns the name of the first route of cfg whose condition
// holds for data.
func SelectBranch(cfg *workflow.RouterConfig, data map[string]any) (string, error) {
	for _, r := range cfg.Routes {
		ok, err := Eval(r.When, data)
		if err != nil {
			return "", fmt.Errorf("route %q: %w", r.Name, err)
		}
		if ok {
			return r.Name, nil
		}
	}
	return "", ErrNoRouteMatched
}

// EdgeSource lists the committed edges leaving a node.
type EdgeSource interface {
	OutgoingEdges(nodeID string) []workflow.Edge
}

// Fire selects the branch of router n for data and returns it together with
// the edges that carry its value downstream.
func Fire(g EdgeSource, n *workflow.Node, data map[string]any) (string, []workflow.Edge, error) {
	cfg, ok := n.Config.(*workflow.RouterConfig)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q is %s", ErrNotRouter, n.ID, n.Type)
	}
	branch, err := SelectBranch(cfg, data)
	if err != nil {
		return "", nil, fmt.Errorf("router %q: %w", n.ID, err)
	}
	var fired []workflow.Edge
	for _, e := range g.OutgoingEdges(n.ID) {
		if e.SourceHandle == branch {
			fired = append(fired, e)
		}
	}
	return branch, fired, nil
}

// Coalesce picks the value of a coalesce node from produced, which maps input
// handle ids to values. Handles named in the node's preferences are tried
// first, then the remaining incoming edges in order. Several produced values
// indicate branches that were not mutually exclusive; the first wins and a
// warning is logged.
func Coalesce(n *workflow.Node, incoming []workflow.Edge, produced map[string]any) (string, any, error) {
	var order []string
	seen := make(map[string]bool)
	push := func(h string) {
		if !seen[h] {
			seen[h] = true
			order = append(order, h)
		}
	}
	if cfg, ok := n.Config.(*workflow.CoalesceConfig); ok {
		for _, h := range cfg.Preferences {
			push(h)
		}
	}
	for _, e := range incoming {
		push(e.TargetHandle)
	}

	var winner string
	var value any
	var count int
	for _, h := range order {
		v, ok := produced[h]
		if !ok {
			continue
		}
		count++
		if count == 1 {
			winner, value = h, v
		}
	}
	if count == 0 {
		return "", nil, fmt.Errorf("coalesce %q: %w", n.ID, ErrNothingProduced)
	}
	if count > 1 {
		slog.Warn("coalesce received several values", "node", n.ID, "count", count, "chosen", winner)
	}
	return winner, value, nil
}

// Merge combines produced values keyed by input handle id, in incoming edge
// order. Handles that produced nothing are left out.
func Merge(incoming []workflow.Edge, produced map[string]any) map[string]any {
	out := make(map[string]any, len(incoming))
	for _, e := range incoming {
		if v, ok := produced[e.TargetHandle]; ok {
			out[e.TargetHandle] = v
		}
	}
	return out
}
