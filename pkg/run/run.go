// Package run is the boundary to the external execution engine. The engine
// receives a graph document and streams back per-node outputs and an overall
// status; this package only keeps the latest of each for display.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// Status is the overall state of a run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts a status in any letter case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// Terminal reports whether no further updates follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Update is one message from the engine. Either field may be empty.
type Update struct {
	Status Status
	NodeID string
	Output map[string]any
	Error  string
}

// Trigger starts a run of doc. The channel is closed by the engine once the
// run reaches a terminal status.
type Trigger interface {
	Start(ctx context.Context, doc *workflow.Document) (<-chan Update, error)
}

// NodeOutput is the latest output reported for one node.
type NodeOutput struct {
	Output    map[string]any
	Error     string
	UpdatedAt time.Time
}

// Tracker holds the latest state of one run.
type Tracker struct {
	mu      sync.RWMutex
	status  Status
	outputs map[string]NodeOutput
	now     func() time.Time
}

// NewTracker creates a Tracker in the PENDING state.
func NewTracker() *Tracker {
	return &Tracker{
		status:  StatusPending,
		outputs: make(map[string]NodeOutput),
		now:     time.Now,
	}
}

// Apply records u. Updates after a terminal status are ignored.
func (t *Tracker) Apply(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		slog.Debug("ignoring update after terminal status", "status", t.status, "node", u.NodeID)
		return
	}
	if u.NodeID != "" {
		t.outputs[u.NodeID] = NodeOutput{Output: u.Output, Error: u.Error, UpdatedAt: t.now()}
	}
	if u.Status != "" && u.Status != t.status {
		slog.Info("run status", "from", t.status, "to", u.Status)
		t.status = u.Status
	}
}

// Status returns the latest overall status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// LatestOutput returns the last output reported for nodeID.
func (t *Tracker) LatestOutput(nodeID string) (NodeOutput, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.outputs[nodeID]
	return o, ok
}

// Follow applies updates from ch until it closes or ctx is done. It returns
// the final status, or ctx's error.
func (t *Tracker) Follow(ctx context.Context, ch <-chan Update) (Status, error) {
	for {
		select {
		case <-ctx.Done():
			return t.Status(), ctx.Err()
		case u, ok := <-ch:
			if !ok {
				return t.Status(), nil
			}
			t.Apply(u)
		}
	}
}
