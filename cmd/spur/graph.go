package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Print a human-readable summary of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "dot":
				fmt.Fprint(out, workflow.RenderDOT(doc, "spur"))
			case "text", "":
				fmt.Fprint(out, renderText(doc))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// topoOrder returns node IDs in BFS order from the input node; unreachable
// nodes are appended in sorted order at the end.
func topoOrder(doc *workflow.Document) []string {
	var startID string
	for _, n := range doc.Nodes {
		if n.Type == workflow.NodeTypeInput && n.ParentID == "" {
			startID = n.ID
			break
		}
	}

	visited := map[string]bool{}
	var order []string

	if startID != "" {
		queue := []string{startID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			order = append(order, cur)
			for _, e := range doc.OutgoingEdges(cur) {
				if !visited[e.Target] {
					queue = append(queue, e.Target)
				}
			}
		}
	}

	var rest []string
	for _, n := range doc.Nodes {
		if !visited[n.ID] {
			rest = append(rest, n.ID)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderText produces the human-readable text summary.
func renderText(doc *workflow.Document) string {
	var sb strings.Builder

	kind := doc.SpurType
	if kind == "" {
		kind = workflow.SpurTypeWorkflow
	}
	fmt.Fprintf(&sb, "Spur: %s  (%d nodes, %d links)\n", kind, len(doc.Nodes), len(doc.Links))

	maxIDLen := 4
	maxTypeLen := 4
	for _, n := range doc.Nodes {
		maxIDLen = max(maxIDLen, len(n.ID))
		maxTypeLen = max(maxTypeLen, len(n.Type))
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, id := range topoOrder(doc) {
		n, _ := doc.Node(id)
		var attrs []string
		if n.Title != "" {
			attrs = append(attrs, "title="+n.Title)
		}
		if n.Config != nil {
			base := n.Config.Base()
			for _, side := range []workflow.Side{workflow.SideInput, workflow.SideOutput} {
				if base.HasSchema(side) {
					attrs = append(attrs, fmt.Sprintf("%s=%s", side, strings.Join(base.Schema(side).Keys(), ",")))
				}
			}
			if branches, ok := workflow.BranchesOf(n); ok {
				attrs = append(attrs, "branches="+strings.Join(branches, ","))
			}
			for _, t := range n.Config.Templates() {
				if *t.Text != "" {
					attrs = append(attrs, t.Name+"="+truncate(*t.Text, 40))
				}
			}
		}
		fmt.Fprintf(&sb, "  %-*s  %-*s  %s\n", maxIDLen, id, maxTypeLen, string(n.Type), strings.Join(attrs, " "))
	}

	fmt.Fprintf(&sb, "\nLinks:\n")
	maxFromLen := 4
	froms := make([]string, len(doc.Links))
	for i, e := range doc.Links {
		froms[i] = e.Source
		if e.SourceHandle != "" {
			froms[i] += "." + e.SourceHandle
		}
		maxFromLen = max(maxFromLen, len(froms[i]))
	}
	for i, e := range doc.Links {
		fmt.Fprintf(&sb, "  %-*s  →  %s  [%s]\n", maxFromLen, froms[i], e.Target, e.TargetHandle)
	}

	return sb.String()
}
