package workflow

import (
	"fmt"
	"strings"
)

// Kind is the top-level shape of a type descriptor.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindStr   Kind = "str"
	KindBool  Kind = "bool"
	KindList  Kind = "list"
	KindDict  Kind = "dict"
)

// TypeDesc is a parsed schema type descriptor such as "list[dict[str, int]]".
// Elem is set for parameterised lists and dicts, Key only for dicts.
type TypeDesc struct {
	Kind Kind
	Key  *TypeDesc
	Elem *TypeDesc
}

func (t TypeDesc) String() string {
	switch {
	case t.Kind == KindList && t.Elem != nil:
		return "list[" + t.Elem.String() + "]"
	case t.Kind == KindDict && t.Key != nil && t.Elem != nil:
		return "dict[" + t.Key.String() + ", " + t.Elem.String() + "]"
	default:
		return string(t.Kind)
	}
}

// ParseType parses a descriptor. Matching is case-insensitive and ignores
// surrounding whitespace.
func ParseType(s string) (TypeDesc, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "int", "float", "str", "bool", "list", "dict":
		return TypeDesc{Kind: Kind(s)}, nil
	}
	if inner, ok := cutWrapped(s, "list["); ok {
		elem, err := ParseType(inner)
		if err != nil {
			return TypeDesc{}, err
		}
		return TypeDesc{Kind: KindList, Elem: &elem}, nil
	}
	if inner, ok := cutWrapped(s, "dict["); ok {
		k, v, err := splitTopLevel(inner)
		if err != nil {
			return TypeDesc{}, err
		}
		key, err := ParseType(k)
		if err != nil {
			return TypeDesc{}, err
		}
		val, err := ParseType(v)
		if err != nil {
			return TypeDesc{}, err
		}
		return TypeDesc{Kind: KindDict, Key: &key, Elem: &val}, nil
	}
	return TypeDesc{}, fmt.Errorf("unsupported type %q", s)
}

func cutWrapped(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, "]") {
		return s[len(prefix) : len(s)-1], true
	}
	return "", false
}

// splitTopLevel splits "k, v" at the comma that is not nested in brackets.
func splitTopLevel(s string) (string, string, error) {
	depth := 0
	var parts []string
	start := 0
	for i, c := range s {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid dict type specification %q", s)
	}
	return parts[0], parts[1], nil
}
