package workflow

import (
	"fmt"
	"regexp"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseDOT parses a Graphviz digraph into a Document.
//
// Node attributes: node_type (or type), title, config (a JSON object).
// Edge ports carry branch names: `router:isPdf -> summary`. An explicit
// target_handle edge attribute is kept; otherwise it is derived on Normalize.
func ParseDOT(src string) (*Document, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// A permissive collector accepts any attribute name, which the strict
	// gographviz.Graph would reject.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	doc := &Document{SpurType: SpurType(collector.graphAttrs["spur_type"])}
	for _, id := range collector.order {
		attrs := collector.nodes[id]
		nodeType := NodeType(attrs["node_type"])
		if nodeType == "" {
			nodeType = NodeType(attrs["type"])
		}
		cfg, err := DecodeConfig(nodeType, []byte(attrs["config"]))
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
		doc.Nodes = append(doc.Nodes, &Node{
			ID:       id,
			Title:    attrs["title"],
			ParentID: attrs["parent_id"],
			Type:     nodeType,
			Config:   cfg,
		})
	}
	for _, e := range collector.edges {
		doc.Links = append(doc.Links, Edge{
			ID:           e.attrs["id"],
			Source:       e.from,
			Target:       e.to,
			SourceHandle: e.fromPort,
			TargetHandle: e.attrs["target_handle"],
		})
	}
	return doc, nil
}

type rawEdge struct {
	from, to string
	fromPort string
	attrs    map[string]string
}

// dotCollector implements gographviz.Interface without attribute validation
// and remembers declaration order.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string
	order      []string
	edges      []rawEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string)
		c.order = append(c.order, id)
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, _ string, _ bool, attrs map[string]string) error {
	from, to := unquote(src), unquote(dst)
	// Edges may name nodes that were never declared on their own.
	for _, id := range []string{from, to} {
		if _, ok := c.nodes[id]; !ok {
			c.nodes[id] = make(map[string]string)
			c.order = append(c.order, id)
		}
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = unquote(v)
	}
	c.edges = append(c.edges, rawEdge{from: from, to: to, fromPort: portName(srcPort), attrs: copied})
	return nil
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// portName turns ":isPdf" or `:"is pdf":n` into the bare port id.
func portName(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), ":")
	if p == "" {
		return ""
	}
	if p[0] == '"' {
		if end := strings.Index(p[1:], `"`); end >= 0 {
			return unquote(p[:end+2])
		}
	}
	if i := strings.Index(p, ":"); i >= 0 {
		p = p[:i]
	}
	return p
}

// unquote strips surrounding double-quotes from a DOT value and undoes the
// escapes dotQuote adds.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

var bareDOTID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dotQuote returns s as a DOT ID, quoting unless it is a plain identifier.
func dotQuote(s string) string {
	if bareDOTID.MatchString(s) && !isDOTKeyword(s) {
		return s
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func isDOTKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "node", "edge", "graph", "digraph", "subgraph", "strict":
		return true
	}
	return false
}

// RenderDOT produces a digraph that ParseDOT reads back into the same
// document. Nodes and edges keep their document order.
func RenderDOT(doc *Document, name string) string {
	var sb strings.Builder
	if name == "" {
		name = "spur"
	}
	fmt.Fprintf(&sb, "digraph %s {\n", dotQuote(name))
	if doc.SpurType != "" {
		fmt.Fprintf(&sb, "    spur_type=%s\n", dotQuote(string(doc.SpurType)))
	}
	for _, n := range doc.Nodes {
		parts := []string{"node_type=" + dotQuote(string(n.Type))}
		if n.Title != "" {
			parts = append(parts, "title="+dotQuote(n.Title))
		}
		if n.ParentID != "" {
			parts = append(parts, "parent_id="+dotQuote(n.ParentID))
		}
		if n.Config != nil {
			if raw, err := EncodeConfig(n.Config); err == nil && string(raw) != "{}" {
				parts = append(parts, "config="+dotQuote(string(raw)))
			}
		}
		fmt.Fprintf(&sb, "    %s [%s]\n", dotQuote(n.ID), strings.Join(parts, " "))
	}
	for _, e := range doc.Links {
		from := dotQuote(e.Source)
		if e.SourceHandle != "" {
			from += ":" + dotQuote(e.SourceHandle)
		}
		var attrs []string
		if e.ID != "" {
			attrs = append(attrs, "id="+dotQuote(e.ID))
		}
		if e.TargetHandle != "" {
			attrs = append(attrs, "target_handle="+dotQuote(e.TargetHandle))
		}
		if len(attrs) > 0 {
			fmt.Fprintf(&sb, "    %s -> %s [%s]\n", from, dotQuote(e.Target), strings.Join(attrs, " "))
		} else {
			fmt.Fprintf(&sb, "    %s -> %s\n", from, dotQuote(e.Target))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
