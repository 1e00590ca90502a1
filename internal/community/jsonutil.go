package community

import "strings"

// extractJSONObject strips Markdown code fences and leading/trailing prose
// an LLM sometimes wraps its JSON response in, returning the substring from
// the first '{' to the matching last '}'. Best-effort: if no braces are
// found, the input is returned unchanged and json.Unmarshal will surface the
// parse error.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
