package extract

import (
	"strconv"
	"strings"
)

// parseResponse splits response by the record separator and parses each
// record per spec §4.3 step 4: names are uppercased by the extractor,
// entity_type is normalized to uppercase. Malformed records are skipped
// rather than failing the whole chunk.
func parseResponse(response, chunkID string) ([]RawEntity, []RawEdge) {
	var entities []RawEntity
	var edges []RawEdge

	records := strings.Split(response, recordSep)
	for _, rec := range records {
		rec = strings.Trim(strings.TrimSpace(rec), "()")
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := splitFields(rec)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(fields[0])) {
		case "entity":
			if len(fields) < 4 {
				continue
			}
			entities = append(entities, RawEntity{
				Name:        strings.ToUpper(strings.TrimSpace(fields[1])),
				Type:        strings.ToUpper(strings.TrimSpace(fields[2])),
				Description: strings.TrimSpace(fields[3]),
				SourceChunk: chunkID,
			})
		case "relationship":
			if len(fields) < 5 {
				continue
			}
			weight := 1.0
			if w, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64); err == nil {
				weight = w
			}
			edges = append(edges, RawEdge{
				Source:      strings.ToUpper(strings.TrimSpace(fields[1])),
				Target:      strings.ToUpper(strings.TrimSpace(fields[2])),
				Description: strings.TrimSpace(fields[3]),
				Weight:      weight,
				SourceChunk: chunkID,
			})
		}
	}
	return entities, edges
}

func splitFields(rec string) []string {
	parts := strings.Split(rec, fieldSep)
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), "()")
	}
	return parts
}

// looksTruncated reports whether response appears cut off mid-stream: no
// trailing record separator and no closing paren on the last record, per
// spec §4.3 step 3.
func looksTruncated(response string) bool {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return true
	}
	if strings.HasSuffix(trimmed, recordSep) {
		return false
	}
	return !strings.HasSuffix(trimmed, ")")
}
