package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// LintError describes a structural problem in a document.
type LintError struct {
	NodeID  string
	Message string
}

func (e LintError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
	}
	return e.Message
}

var (
	structValidator *validator.Validate
	validatorOnce   sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		// Report wire names, not Go field names.
		structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return structValidator
}

// Validate checks a document for structural correctness and returns every
// problem found, not just the first.
func Validate(doc *Document) []LintError {
	var errs []LintError

	if err := getValidator().Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, LintError{
					Message: fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag()),
				})
			}
		} else {
			errs = append(errs, LintError{Message: err.Error()})
		}
	}

	seen := make(map[string]bool)
	var inputs, outputs int
	for _, n := range doc.Nodes {
		if n.ID != "" && seen[n.ID] {
			errs = append(errs, LintError{NodeID: n.ID, Message: "duplicate node id"})
		}
		seen[n.ID] = true
		if n.ParentID == "" {
			switch n.Type {
			case NodeTypeInput:
				inputs++
			case NodeTypeOutput:
				outputs++
			}
		}
	}
	if inputs != 1 {
		errs = append(errs, LintError{Message: fmt.Sprintf("workflow must have exactly one input node, found %d", inputs)})
	}
	if outputs > 1 {
		errs = append(errs, LintError{Message: fmt.Sprintf("workflow must have at most one output node, found %d", outputs)})
	}

	titles := make(map[string]string)
	for _, n := range doc.Nodes {
		id := OutputHandleID(n)
		if other, ok := titles[id]; ok && other != n.ID {
			errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf("handle id %q is also used by node %q", id, other)})
		}
		titles[id] = n.ID
		errs = append(errs, ValidateNode(n)...)
	}

	for _, e := range doc.Links {
		if _, ok := doc.Node(e.Source); !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown source node %q", e.Source)})
		}
		if _, ok := doc.Node(e.Target); !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown target node %q", e.Target)})
		}
	}

	return errs
}

// ValidateNode checks a single node's config: schema descriptors parse,
// router routes are named and unique, and templates only reference declared
// inputs or dotted upstream outputs.
func ValidateNode(n *Node) []LintError {
	var errs []LintError
	if n.Config == nil {
		return nil
	}
	base := n.Config.Base()
	for _, side := range []Side{SideInput, SideOutput} {
		for _, f := range base.Schema(side).Fields() {
			if _, err := ParseType(f.Type); err != nil {
				errs = append(errs, LintError{
					NodeID:  n.ID,
					Message: fmt.Sprintf("%s schema field %q: %v", side, f.Name, err),
				})
			}
		}
	}

	if branches, ok := BranchesOf(n); ok {
		if len(branches) == 0 {
			errs = append(errs, LintError{NodeID: n.ID, Message: "router must declare at least one route"})
		}
		names := make(map[string]bool)
		for _, b := range branches {
			switch {
			case b == "":
				errs = append(errs, LintError{NodeID: n.ID, Message: "route name must not be empty"})
			case names[b]:
				errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf("duplicate route %q", b)})
			}
			names[b] = true
		}
	}

	if base.HasSchema(SideInput) {
		inputs := base.Schema(SideInput)
		for _, t := range n.Config.Templates() {
			for _, ref := range Placeholders(*t.Text) {
				if strings.Contains(ref, ".") || inputs.Has(ref) {
					continue
				}
				errs = append(errs, LintError{
					NodeID:  n.ID,
					Message: fmt.Sprintf("%s references undeclared input %q", t.Name, ref),
				})
			}
		}
	}
	return errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error listing all of them.
func ValidateErr(doc *Document) error {
	errs := Validate(doc)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("workflow validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
