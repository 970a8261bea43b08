package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholders are spelled "{{ key }}" with optional interior whitespace.
// Upstream outputs are addressed as "{{ Title.field }}".
var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Placeholders returns the distinct placeholder references in s, in order of
// first appearance.
func Placeholders(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// RewritePlaceholder replaces every placeholder referencing exactly oldRef
// with newRef, keeping the original spacing inside the delimiters.
func RewritePlaceholder(s, oldRef, newRef string) string {
	re := regexp.MustCompile(`(\{\{\s*)` + regexp.QuoteMeta(oldRef) + `(\s*\}\})`)
	return re.ReplaceAllString(s, "${1}"+escapeReplacement(newRef)+"${2}")
}

// RewritePrefix replaces the leading segment of dotted placeholders
// "{{ oldPrefix.rest }}" with newPrefix. Placeholders without the dot are not
// touched.
func RewritePrefix(s, oldPrefix, newPrefix string) string {
	re := regexp.MustCompile(`(\{\{\s*)` + regexp.QuoteMeta(oldPrefix) + `(\.[^{}\s]+\s*\}\})`)
	return re.ReplaceAllString(s, "${1}"+escapeReplacement(newPrefix)+"${2}")
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// Render substitutes placeholders from data. Dotted references are resolved
// through nested maps. Unknown references are reported together.
func Render(s string, data map[string]any) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		ref := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := lookup(data, ref)
		if !ok {
			missing = append(missing, ref)
			return m
		}
		return fmt.Sprint(v)
	})
	if len(missing) > 0 {
		return out, fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func lookup(data map[string]any, ref string) (any, bool) {
	if v, ok := data[ref]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(ref, ".")
	if !found {
		return nil, false
	}
	inner, ok := data[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(inner, rest)
}
