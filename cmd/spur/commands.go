package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/spur/pkg/editor"
	"github.com/ravi-parthasarathy/spur/pkg/graph"
	"github.com/ravi-parthasarathy/spur/pkg/handles"
	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <workflow>",
		Short: "Validate a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			if lintErr := workflow.ValidateErr(doc); lintErr != nil {
				return lintErr
			}
			if _, err := graph.Load(doc, schema.Builtin()); err != nil {
				return fmt.Errorf("invalid workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: workflow is valid (%d nodes, %d links)\n",
				len(doc.Nodes), len(doc.Links))
			return nil
		},
	}
}

// ─── handles ──────────────────────────────────────────────────────────────────

func handlesCmd() *cobra.Command {
	var collapsed bool

	cmd := &cobra.Command{
		Use:   "handles <workflow> [node-id...]",
		Short: "Print the resolved input and output handles of nodes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]
			if len(ids) == 0 {
				for _, n := range s.Store().Nodes() {
					ids = append(ids, n.ID)
				}
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				s.SetCollapsed(id, collapsed)
				nh, err := s.Handles(id)
				if err != nil {
					return err
				}
				writeHandles(out, nh)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&collapsed, "collapsed", false, "resolve as if the nodes were collapsed")
	return cmd
}

func writeHandles(w io.Writer, nh handles.NodeHandles) {
	fmt.Fprintf(w, "%s\n", nh.NodeID)
	for _, h := range append(append([]handles.Handle(nil), nh.Inputs...), nh.Outputs...) {
		state := "connectable"
		if !h.Connectable {
			state = "occupied"
		}
		fmt.Fprintf(w, "  %-6s  %-24s  %s\n", h.Side, h.ID, state)
	}
	for _, f := range nh.Fields {
		fmt.Fprintf(w, "  field   %-6s  %s: %s\n", f.Side, f.Name, f.Type)
	}
}

// ─── rename / retitle / set ──────────────────────────────────────────────────

func renameCmd() *cobra.Command {
	var side, output string

	cmd := &cobra.Command{
		Use:   "rename <workflow> <node-id> <old-key> <new-key>",
		Short: "Rename a schema field or router branch and update every reference",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sd, err := parseSide(side)
			if err != nil {
				return err
			}
			return editAndSave(cmd, args[0], output, func(s *editor.Session) error {
				return s.RenameHandle(args[1], args[2], args[3], sd)
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "input", "schema side: input or output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of in place")
	return cmd
}

func retitleCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "retitle <workflow> <node-id> <title>",
		Short: "Change a node title and update every reference to its output handle",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSave(cmd, args[0], output, func(s *editor.Session) error {
				return s.RenameTitle(args[1], args[2])
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of in place")
	return cmd
}

func setCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "set <workflow> <node-id> <path> <value>",
		Short: "Set a config value by dotted path; JSON values are decoded",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSave(cmd, args[0], output, func(s *editor.Session) error {
				return s.EditConfigField(args[1], args[2], parseValue(args[3]))
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of in place")
	return cmd
}

// parseValue decodes v as JSON when it is valid JSON and keeps it as a string
// otherwise.
func parseValue(v string) any {
	if !gjson.Valid(v) {
		return v
	}
	return gjson.Parse(v).Value()
}

func parseSide(s string) (workflow.Side, error) {
	switch strings.ToLower(s) {
	case "input", "in":
		return workflow.SideInput, nil
	case "output", "out":
		return workflow.SideOutput, nil
	default:
		return "", fmt.Errorf("unknown side %q: use input or output", s)
	}
}

// ─── convert ──────────────────────────────────────────────────────────────────

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a workflow between JSON, YAML and DOT by file extension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := workflow.SaveFile(args[1], doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", args[1], workflow.FormatFromPath(args[1]))
			return nil
		},
	}
}

// ─── route / preview ─────────────────────────────────────────────────────────

func routeCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "route <workflow> <router-id>",
		Short: "Show which branch a router takes for an input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0])
			if err != nil {
				return err
			}
			data, err := parseInput(input)
			if err != nil {
				return err
			}
			branch, edges, err := s.PreviewRoute(args[1], data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "branch: %s\n", branch)
			for _, e := range edges {
				fmt.Fprintf(out, "  → %s [%s]\n", e.Target, e.TargetHandle)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input data as a JSON object (default: first test input)")
	return cmd
}

func previewCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "preview <workflow> <llm-node-id>",
		Short: "Print the provider request an LLM call node would send",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0])
			if err != nil {
				return err
			}
			data, err := parseInput(input)
			if err != nil {
				return err
			}
			_, body, err := s.PreviewLLM(args[1], data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input data as a JSON object (default: first test input)")
	return cmd
}

func parseInput(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := gjson.Parse(s).Value().(map[string]any)
	if !gjson.Valid(s) || !ok {
		return nil, fmt.Errorf("--input must be a JSON object")
	}
	return v, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func openSession(path string) (*editor.Session, error) {
	doc, err := workflow.LoadFile(path)
	if err != nil {
		return nil, err
	}
	reg := schema.Builtin()
	store, err := graph.Load(doc, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return editor.NewSession(store, reg, editor.WithDefaultModel(settings.DefaultModel)), nil
}

// editAndSave applies edit to the workflow at path and writes it to output,
// or back to path. Edits that change nothing leave the file untouched.
func editAndSave(cmd *cobra.Command, path, output string, edit func(*editor.Session) error) error {
	s, err := openSession(path)
	if err != nil {
		return err
	}
	before := s.Store().Version()
	if err := edit(s); err != nil {
		return err
	}
	if output == "" {
		if s.Store().Version() == before {
			fmt.Fprintln(cmd.OutOrStdout(), "no change")
			return nil
		}
		output = path
	}
	if err := workflow.SaveFile(output, s.Store().Document()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
	return nil
}
