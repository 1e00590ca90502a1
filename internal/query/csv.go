package query

import (
	"encoding/csv"
	"strings"
)

// writeCSV writes one fixed-order section, matching the texture of
// internal/community's report context assembly. Empty sections are
// omitted entirely rather than emitting a bare header.
func writeCSV(b *strings.Builder, header string, cols []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	b.WriteString("-----" + header + "-----\n")
	w := csv.NewWriter(b)
	_ = w.Write(cols)
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	b.WriteString("\n")
}

// shortenLongestDescription truncates the longest entry in descCol by five
// words, reporting whether anything was shortened. Mirrors
// internal/community.shortenLongestDescription; kept as a separate copy
// since cross-package truncation helpers aren't worth an exported API for
// two callers.
func shortenLongestDescription(rows [][]string, descCol int) bool {
	longest := -1
	longestLen := 0
	for i, row := range rows {
		if descCol >= len(row) {
			continue
		}
		if l := len(row[descCol]); l > longestLen {
			longest = i
			longestLen = l
		}
	}
	if longest < 0 || longestLen < 40 {
		return false
	}
	words := strings.Fields(rows[longest][descCol])
	if len(words) <= 5 {
		return false
	}
	rows[longest][descCol] = strings.Join(words[:len(words)-5], " ") + "..."
	return true
}

func rowTokens(tok func(string) int, rows [][]string) int {
	total := 0
	for _, row := range rows {
		total += tok(strings.Join(row, " "))
	}
	return total
}
