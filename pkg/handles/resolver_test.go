package handles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/spur/pkg/handles"
	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

func node(id, title string, t workflow.NodeType, cfg workflow.Config) *workflow.Node {
	if cfg == nil {
		cfg = workflow.NewConfig(t)
	}
	return &workflow.Node{ID: id, Title: title, Type: t, Config: cfg}
}

// branchingDoc routes one input to either a PDF reader or a scraper and
// converges them on a coalesce, a merge and a summary.
func branchingDoc() *workflow.Document {
	router := &workflow.RouterConfig{Routes: []workflow.Route{{Name: "isPdf"}, {Name: "isUrl"}}}
	doc := &workflow.Document{
		Nodes: []*workflow.Node{
			node("input", "Input", workflow.NodeTypeInput, nil),
			node("R", "Router", workflow.NodeTypeRouter, router),
			node("pdf", "PdfReader", workflow.NodeTypeLLMCall, nil),
			node("scrape", "Extractor", workflow.NodeTypeScraper, nil),
			node("pick", "Pick", workflow.NodeTypeCoalesce, nil),
			node("merge", "Merge", workflow.NodeTypeMerge, nil),
			node("summary", "Summary", workflow.NodeTypeLLMCall, nil),
			node("loose", "", workflow.NodeTypeLLMCall, nil),
		},
		Links: []workflow.Edge{
			{Source: "input", Target: "R"},
			{Source: "R", SourceHandle: "isPdf", Target: "pdf"},
			{Source: "R", SourceHandle: "isUrl", Target: "scrape"},
			{Source: "pdf", Target: "pick"},
			{Source: "scrape", Target: "pick"},
			{Source: "pdf", Target: "merge"},
			{Source: "scrape", Target: "merge"},
			{Source: "R", SourceHandle: "isPdf", Target: "summary"},
			{Source: "R", SourceHandle: "isUrl", Target: "summary"},
		},
	}
	workflow.Normalize(doc)
	return doc
}

func newResolver() *handles.Resolver {
	return handles.NewResolver(branchingDoc(), schema.Builtin())
}

func connectable(hs []handles.Handle) []bool {
	out := make([]bool, len(hs))
	for i, h := range hs {
		out[i] = h.Connectable
	}
	return out
}

func TestResolve_Idempotent(t *testing.T) {
	r := newResolver()
	g := handles.Begin("input", "").Hover("pick")
	first, err := r.Resolve("pick", g, handles.Options{})
	require.NoError(t, err)
	second, err := r.Resolve("pick", g, handles.Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInputs_BranchesOfOneRouterStayDistinct(t *testing.T) {
	in, err := newResolver().Inputs("summary", handles.Inactive())
	require.NoError(t, err)
	assert.Equal(t, []string{"R.isPdf", "R.isUrl"}, handles.IDs(in))
	assert.Equal(t, []bool{false, false}, connectable(in))
	assert.Equal(t, "Router.isPdf", in[0].Label)
}

func TestInputs_Policies(t *testing.T) {
	r := newResolver()

	pick, err := r.Inputs("pick", handles.Inactive())
	require.NoError(t, err)
	assert.Equal(t, []string{"PdfReader", "Extractor"}, handles.IDs(pick))
	assert.Equal(t, []bool{true, true}, connectable(pick), "coalesce handles stay connectable")

	merge, err := r.Inputs("merge", handles.Inactive())
	require.NoError(t, err)
	assert.Equal(t, []string{"PdfReader", "Extractor"}, handles.IDs(merge))
	assert.Equal(t, []bool{false, false}, connectable(merge))
}

func TestInputs_PreviewHandle(t *testing.T) {
	r := newResolver()

	g := handles.Begin("input", "")
	in, err := r.Inputs("summary", g)
	require.NoError(t, err)
	assert.Len(t, in, 2, "no preview before hovering")

	g = g.Hover("summary")
	in, err = r.Inputs("summary", g)
	require.NoError(t, err)
	require.Len(t, in, 3)
	assert.Equal(t, "Input", in[2].ID)
	assert.True(t, in[2].Preview)
	assert.True(t, in[2].Connectable)

	// Other nodes are unaffected by the hover.
	pdf, err := r.Inputs("pdf", g)
	require.NoError(t, err)
	assert.Equal(t, []string{"R.isPdf"}, handles.IDs(pdf))

	in, err = r.Inputs("summary", g.Leave())
	require.NoError(t, err)
	assert.Len(t, in, 2)
}

func TestInputs_PreviewOfExistingSourceIsNotDuplicated(t *testing.T) {
	g := handles.Begin("R", "isPdf").Hover("summary")
	in, err := newResolver().Inputs("summary", g)
	require.NoError(t, err)
	assert.Equal(t, []string{"R.isPdf", "R.isUrl"}, handles.IDs(in))
	assert.False(t, in[0].Preview)
	assert.False(t, in[0].Connectable)
}

func TestInputs_NoPreviewForSourceOnFieldHandle(t *testing.T) {
	doc := branchingDoc()
	summary, _ := doc.Node("summary")
	summary.Config.Base().SetSchema(workflow.SideInput, workflow.NewSchema(workflow.Field{Name: "doc", Type: "str"}))
	doc.Links = append(doc.Links, workflow.Edge{ID: "pick-doc", Source: "pick", Target: "summary", TargetHandle: "doc"})
	r := handles.NewResolver(doc, schema.Builtin())

	in, err := r.Inputs("summary", handles.Begin("pick", "").Hover("summary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R.isPdf", "R.isUrl", "doc"}, handles.IDs(in))
	for _, h := range in {
		assert.False(t, h.Preview, "handle %s", h.ID)
	}

	// Another source still previews.
	in, err = r.Inputs("summary", handles.Begin("input", "").Hover("summary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R.isPdf", "R.isUrl", "doc", "Input"}, handles.IDs(in))
}

func TestOutputs(t *testing.T) {
	doc := branchingDoc()
	router, _ := doc.Node("R")
	assert.Equal(t, []string{"isPdf", "isUrl"}, handles.IDs(handles.Outputs(router)))

	pdf, _ := doc.Node("pdf")
	assert.Equal(t, []string{"PdfReader"}, handles.IDs(handles.Outputs(pdf)))

	loose, _ := doc.Node("loose")
	assert.Equal(t, []string{"loose"}, handles.IDs(handles.Outputs(loose)))
}

func TestResolve_Collapsed(t *testing.T) {
	r := newResolver()

	open, err := r.Resolve("scrape", handles.Inactive(), handles.Options{})
	require.NoError(t, err)
	assert.Equal(t, []handles.FieldRow{
		{Side: workflow.SideInput, Name: "url", Type: "str"},
		{Side: workflow.SideOutput, Name: "markdown", Type: "str"},
		{Side: workflow.SideOutput, Name: "metadata", Type: "dict"},
	}, open.Fields)

	closed, err := r.Resolve("scrape", handles.Inactive(), handles.Options{Collapsed: true})
	require.NoError(t, err)
	assert.Empty(t, closed.Fields)
	assert.Equal(t, open.Inputs, closed.Inputs)
	assert.Equal(t, open.Outputs, closed.Outputs)
}

func TestResolve_UnknownNode(t *testing.T) {
	_, err := newResolver().Resolve("ghost", handles.Inactive(), handles.Options{})
	assert.Error(t, err)
}

func TestConnectable(t *testing.T) {
	r := newResolver()
	tests := []struct {
		node, handle string
		want         bool
	}{
		{"summary", "R.isPdf", false},
		{"summary", "Input", true},
		{"pick", "PdfReader", true},
		{"merge", "Extractor", false},
		{"pdf", "R.isUrl", true},
	}
	for _, tt := range tests {
		got, err := r.Connectable(tt.node, tt.handle)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.node, tt.handle)
	}
}
