package workflow_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

const sampleJSON = `{
  "spur_type": "workflow",
  "nodes": [
    {"id": "input", "title": "Input", "node_type": "InputNode",
     "config": {"output_schema": {"url": "str", "kind": "str"}}},
    {"id": "R", "title": "Router", "node_type": "RouterNode",
     "config": {"routes": [{"name": "isPdf", "when": "Input.kind == 'pdf'"}, {"name": "isUrl"}]}},
    {"id": "pdf", "title": "PdfReader", "node_type": "SingleLLMCallNode",
     "config": {"llm_info": {"model": "openai:gpt-4o"}, "user_message": "{{ Input.url }}"}},
    {"id": "out", "node_type": "OutputNode",
     "config": {"output_map": {"text": "PdfReader.response"}}}
  ],
  "links": [
    {"source_id": "input", "target_id": "R"},
    {"source_id": "R", "source_handle": "isPdf", "target_id": "pdf"},
    {"source_id": "R", "target_id": "out", "target_handle": "R.isUrl"},
    {"source_id": "pdf", "target_id": "out"}
  ]
}`

func sampleDoc(t *testing.T) *workflow.Document {
	t.Helper()
	doc, err := workflow.Decode([]byte(sampleJSON), workflow.FormatJSON)
	require.NoError(t, err)
	return doc
}

func TestDecode_NormalizesLinks(t *testing.T) {
	doc := sampleDoc(t)
	require.Len(t, doc.Links, 4)

	assert.Equal(t, "Input", doc.Links[0].TargetHandle)
	assert.Equal(t, "input->R:Input", doc.Links[0].ID)

	assert.Equal(t, "R.isPdf", doc.Links[1].TargetHandle)

	// Legacy router link: the branch is recovered from the composed handle.
	assert.Equal(t, "isUrl", doc.Links[2].SourceHandle)
	assert.Equal(t, "R.isUrl", doc.Links[2].TargetHandle)

	assert.Equal(t, "PdfReader", doc.Links[3].TargetHandle)
}

func TestDecode_UnknownFormat(t *testing.T) {
	_, err := workflow.Decode([]byte(`{}`), "toml")
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]workflow.Format{
		"a.json":    workflow.FormatJSON,
		"a.YAML":    workflow.FormatYAML,
		"dir/a.yml": workflow.FormatYAML,
		"a.dot":     workflow.FormatDOT,
		"a.gv":      workflow.FormatDOT,
		"no-ext":    workflow.FormatJSON,
		"weird.txt": workflow.FormatJSON,
	}
	for path, want := range tests {
		assert.Equal(t, want, workflow.FormatFromPath(path), path)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	doc := sampleDoc(t)
	doc.TestInputs = []map[string]any{{"Input": map[string]any{"url": "https://x", "kind": "pdf"}}}
	doc.Nodes[0].Coordinates = &workflow.Coordinates{X: 10, Y: 20.5}

	want, err := workflow.Encode(doc, workflow.FormatJSON)
	require.NoError(t, err)

	y, err := workflow.Encode(doc, workflow.FormatYAML)
	require.NoError(t, err)
	text := string(y)
	assert.Less(t, strings.Index(text, "url:"), strings.Index(text, "kind:"), "schema order lost:\n%s", text)

	back, err := workflow.Decode(y, workflow.FormatYAML)
	require.NoError(t, err)
	got, err := workflow.Encode(back, workflow.FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, []string{"url", "kind"}, back.Nodes[0].Config.Base().Schema(workflow.SideOutput).Keys())
}

func TestDOTRoundTrip(t *testing.T) {
	doc := sampleDoc(t)
	dot := workflow.RenderDOT(doc, "sample")
	assert.Contains(t, dot, "R:isPdf -> pdf")

	back, err := workflow.Decode([]byte(dot), workflow.FormatDOT)
	require.NoError(t, err)
	assert.Equal(t, doc.SpurType, back.SpurType)
	assert.Equal(t, doc.Links, back.Links)

	require.Len(t, back.Nodes, len(doc.Nodes))
	for i, n := range doc.Nodes {
		b := back.Nodes[i]
		assert.Equal(t, n.ID, b.ID)
		assert.Equal(t, n.Title, b.Title)
		assert.Equal(t, n.Type, b.Type)
		want, err := json.Marshal(n)
		require.NoError(t, err)
		got, err := json.Marshal(b)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got), "node %s", n.ID)
	}
}

func TestEncodeJSON_KeepsSchemaOrder(t *testing.T) {
	out, err := workflow.Encode(sampleDoc(t), workflow.FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"output_schema": {
          "url": "str",
          "kind": "str"
        }`)
}

const nestedJSON = `{
  "nodes": [
    {"id": "input", "title": "Input", "node_type": "InputNode", "config": {}},
    {"id": "loop", "title": "Loop", "node_type": "MergeNode", "config": {},
     "subworkflow": {
       "nodes": [{"id": "inner", "title": "Inner", "node_type": "SingleLLMCallNode",
                  "config": {"user_message": "{{ item }}"}}],
       "links": []
     }}
  ],
  "links": [{"source_id": "input", "target_id": "loop"}]
}`

func TestSubworkflowSurvivesRoundTrip(t *testing.T) {
	doc, err := workflow.Decode([]byte(nestedJSON), workflow.FormatJSON)
	require.NoError(t, err)
	loop, ok := doc.Node("loop")
	require.True(t, ok)
	require.NotNil(t, loop.Subworkflow)
	require.Len(t, loop.Subworkflow.Nodes, 1)

	for _, format := range []workflow.Format{workflow.FormatJSON, workflow.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			out, err := workflow.Encode(doc, format)
			require.NoError(t, err)
			back, err := workflow.Decode(out, format)
			require.NoError(t, err)

			n, _ := back.Node("loop")
			require.NotNil(t, n.Subworkflow, "subworkflow dropped:\n%s", out)
			require.Len(t, n.Subworkflow.Nodes, 1)
			inner := n.Subworkflow.Nodes[0]
			assert.Equal(t, "inner", inner.ID)
			assert.Equal(t, workflow.NodeTypeLLMCall, inner.Type)
			assert.Equal(t, "{{ item }}", inner.Config.(*workflow.LLMCallConfig).UserMessage)
		})
	}

	clone := loop.Clone()
	clone.Subworkflow.Nodes[0].Title = "Changed"
	assert.Equal(t, "Inner", loop.Subworkflow.Nodes[0].Title, "Clone must copy the subworkflow")
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Extractor", "Extractor"},
		{"", "g"},
		{"   ", "g"},
		{"\t\n", "g"},
	}
	for _, tt := range tests {
		n := &workflow.Node{ID: "g", Title: tt.title}
		assert.Equal(t, tt.want, n.DisplayTitle(), "title %q", tt.title)
		assert.Equal(t, tt.want, workflow.OutputHandleID(n), "title %q", tt.title)
	}

	doc, err := workflow.Decode([]byte(`{
  "nodes": [
    {"id": "g", "title": "  ", "node_type": "InputNode", "config": {}},
    {"id": "out", "title": "Out", "node_type": "OutputNode", "config": {}}
  ],
  "links": [{"source_id": "g", "target_id": "out"}]
}`), workflow.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "g", doc.Links[0].TargetHandle)
}
