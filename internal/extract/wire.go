// Package extract drives LLM entity/relationship extraction per chunk
// (initial call, gleaning, continuation-on-truncation), parses the
// tuple-delimited wire format, and merges per-chunk results into a single
// per-document payload ready for a graph-store batch commit.
//
// Grounded on the teacher's internal/sefii extraction-prompt shape (deleted
// after reading — it targeted a different retrieval pipeline, but the
// "structured text out of an LLM completion" pattern it used is reused
// here) and on spec §4.3's exact wire format.
package extract

const (
	recordSep = "##"
	fieldSep  = "<|>"
)

// RawEntity is one entity record parsed out of a single chunk's extraction
// response, not yet merged across chunks.
type RawEntity struct {
	Name        string
	Type        string
	Description string
	SourceChunk string
}

// RawEdge is one relationship record parsed out of a single chunk's
// extraction response.
type RawEdge struct {
	Source      string
	Target      string
	Description string
	Weight      float64
	SourceChunk string
}
