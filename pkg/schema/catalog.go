package schema

import "github.com/ravi-parthasarathy/spur/pkg/workflow"

// NodeTypeRedditTrending lists popular subreddits. It has a fixed output
// described by a JSON schema.
const NodeTypeRedditTrending workflow.NodeType = "RedditGetTrendingSubredditsNode"

const redditTrendingOutput = `{
  "title": "RedditGetTrendingSubredditsNodeOutput",
  "type": "object",
  "properties": {
    "trending_subreddits": {
      "type": "array",
      "items": {"$ref": "#/$defs/TrendingSubreddit"},
      "description": "List of trending subreddits"
    }
  },
  "required": ["trending_subreddits"]
}`

const scraperOutput = `{
  "title": "FirecrawlScrapeNodeOutput",
  "type": "object",
  "properties": {
    "markdown": {"type": "string"},
    "metadata": {"type": "object"}
  }
}`

// Builtin returns a registry populated with the node types the editor ships.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(TypeSpec{
		Type:          workflow.NodeTypeInput,
		DisplayName:   "Input",
		Category:      "Input/Output",
		DynamicOutput: true,
	})
	r.Register(TypeSpec{
		Type:         workflow.NodeTypeOutput,
		DisplayName:  "Output",
		Category:     "Input/Output",
		DynamicInput: true,
	})
	r.Register(TypeSpec{
		Type:         workflow.NodeTypeLLMCall,
		DisplayName:  "Single LLM Call",
		Category:     "LLM",
		DynamicInput: true,
		Output:       workflow.NewSchema(workflow.Field{Name: "response", Type: "str"}),
	})
	r.Register(TypeSpec{
		Type:         workflow.NodeTypeRouter,
		DisplayName:  "Router",
		Category:     "Logic",
		DynamicInput: true,
	})
	r.Register(TypeSpec{
		Type:          workflow.NodeTypeCoalesce,
		DisplayName:   "Coalesce",
		Category:      "Logic",
		DynamicOutput: true,
	})
	r.Register(TypeSpec{
		Type:          workflow.NodeTypeMerge,
		DisplayName:   "Merge",
		Category:      "Logic",
		DynamicOutput: true,
	})
	r.Register(TypeSpec{
		Type:        workflow.NodeTypeScraper,
		DisplayName: "Firecrawl Scrape",
		Category:    "Integrations",
		Input:       workflow.NewSchema(workflow.Field{Name: "url", Type: "str"}),
	})
	_ = r.RegisterJSONSchema(workflow.NodeTypeScraper, workflow.SideOutput, scraperOutput)

	r.Register(TypeSpec{
		Type:        NodeTypeRedditTrending,
		DisplayName: "Reddit Trending Subreddits",
		Category:    "Reddit",
	})
	_ = r.RegisterJSONSchema(NodeTypeRedditTrending, workflow.SideOutput, redditTrendingOutput)
	return r
}
