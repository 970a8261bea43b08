package schema_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/spur/pkg/schema"
	"github.com/ravi-parthasarathy/spur/pkg/workflow"
)

func TestFromJSONSchema(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []workflow.Field
	}{
		{
			name: "properties",
			raw: `{"title":"T","type":"object","properties":{
				"b":{"type":"integer"},
				"a":{"type":"array","items":{"type":"number"}},
				"ref":{"$ref":"#/$defs/X"},
				"opt":{"anyOf":[{"type":"null"},{"type":"boolean"}]},
				"obj":{"type":"object"},
				"plain":"list[str]"
			}}`,
			want: []workflow.Field{
				{Name: "b", Type: "int"},
				{Name: "a", Type: "list[float]"},
				{Name: "ref", Type: "dict"},
				{Name: "opt", Type: "bool"},
				{Name: "obj", Type: "dict"},
				{Name: "plain", Type: "list[str]"},
			},
		},
		{
			name: "flat object drops structural keys",
			raw:  `{"title":"T","type":"object","required":["x"],"x":"str","y":{"type":"string"}}`,
			want: []workflow.Field{
				{Name: "x", Type: "str"},
				{Name: "y", Type: "str"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.FromJSONSchema(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Fields())
		})
	}
}

func TestFromJSONSchema_Invalid(t *testing.T) {
	for _, raw := range []string{"", "{", "[1,2]", `"str"`} {
		_, err := schema.FromJSONSchema(raw)
		assert.Error(t, err, "FromJSONSchema(%q)", raw)
	}
}

func TestBuiltin(t *testing.T) {
	reg := schema.Builtin()

	out := reg.PropertyMetadata(workflow.NodeTypeScraper, workflow.SideOutput)
	assert.Equal(t, []string{"markdown", "metadata"}, out.Keys())

	reddit := reg.PropertyMetadata(schema.NodeTypeRedditTrending, workflow.SideOutput)
	typ, ok := reddit.Get("trending_subreddits")
	require.True(t, ok)
	assert.Equal(t, "list[dict]", typ)

	assert.Zero(t, reg.PropertyMetadata("NoSuchNode", workflow.SideInput).Len())

	types := reg.Types()
	assert.True(t, sort.SliceIsSorted(types, func(i, j int) bool { return types[i] < types[j] }))
	assert.Contains(t, types, workflow.NodeTypeCoalesce)
}

func TestRegistry_SpecIsACopy(t *testing.T) {
	reg := schema.NewRegistry()
	reg.Register(schema.TypeSpec{
		Type:  "X",
		Input: workflow.NewSchema(workflow.Field{Name: "a", Type: "str"}),
	})
	spec, ok := reg.Spec("X")
	require.True(t, ok)
	spec.Input.Set("b", "int")

	assert.Equal(t, []string{"a"}, reg.PropertyMetadata("X", workflow.SideInput).Keys())
}

func TestRegisterJSONSchema_UnknownType(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.RegisterJSONSchema("Y", workflow.SideInput, `{"properties":{"q":{"type":"string"}}}`))
	spec, ok := reg.Spec("Y")
	require.True(t, ok)
	assert.Equal(t, "Y", spec.DisplayName)
	assert.Equal(t, []string{"q"}, spec.Input.Keys())

	assert.Error(t, reg.RegisterJSONSchema("Y", workflow.SideInput, `nope`))
}

func TestEffective(t *testing.T) {
	reg := schema.Builtin()

	// Catalog metadata when the config declares nothing.
	scraper := &workflow.Node{ID: "s", Type: workflow.NodeTypeScraper, Config: &workflow.ScraperConfig{}}
	assert.Equal(t, []string{"url"}, schema.Effective(reg, scraper, workflow.SideInput).Keys())

	// A declared config schema wins over the catalog.
	cfg := &workflow.ScraperConfig{}
	cfg.SetSchema(workflow.SideInput, workflow.NewSchema(workflow.Field{Name: "page", Type: "str"}))
	scraper.Config = cfg
	assert.Equal(t, []string{"page"}, schema.Effective(reg, scraper, workflow.SideInput).Keys())

	// A fixed output JSON schema comes before the catalog.
	llm := &workflow.Node{ID: "l", Type: workflow.NodeTypeLLMCall, Config: &workflow.LLMCallConfig{
		Common: workflow.Common{OutputJSONSchema: `{"properties":{"answer":{"type":"string"},"score":{"type":"number"}}}`},
	}}
	out := schema.Effective(reg, llm, workflow.SideOutput)
	assert.Equal(t, []workflow.Field{{Name: "answer", Type: "str"}, {Name: "score", Type: "float"}}, out.Fields())

	// Without a source only the config counts.
	assert.Zero(t, schema.Effective(nil, &workflow.Node{ID: "x", Type: workflow.NodeTypeScraper}, workflow.SideInput).Len())
}
