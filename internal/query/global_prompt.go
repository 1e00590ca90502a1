package query

import (
	"fmt"
	"strings"
)

// reduceContext concatenates findings already sorted by descending score,
// dropping the lowest-scored tail once the running total exceeds budget
// (spec §4.5.2 step 4: "sorted by descending score, truncated to budget").
func reduceContext(findings []mapFinding, tok func(string) int, budget int) string {
	var b strings.Builder
	used := 0
	for _, f := range findings {
		line := fmt.Sprintf("- (score %.0f) %s\n", f.Score, f.Description)
		t := tok(line)
		if used+t > budget && used > 0 {
			break
		}
		b.WriteString(line)
		used += t
	}
	return b.String()
}

func globalReducePrompt(question, context string) string {
	return fmt.Sprintf(
		"Multiple analysts each reviewed a different community of a knowledge "+
			"graph and scored how relevant their findings are to the question "+
			"below. Synthesize a single answer from the highest-scored findings, "+
			"most important first.\n\n%s\nQuestion: %s", context, question)
}

func globalFallbackPrompt(question string) string {
	return fmt.Sprintf("Answer the question directly; no community reports were found.\n\nQuestion: %s", question)
}
