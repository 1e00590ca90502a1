// Package chunk splits Document content into content-addressed Chunks. The
// default strategy is a token sliding window; an optional secondary
// "by_separators" splitter (markdown/code boundary-aware) runs first when
// configured, producing natural-boundary sections that are then
// windowed individually.
//
// Grounded on the teacher's internal/rag/chunker/chunker.go strategy-dispatch
// shape, generalized to the spec's exact token-sliding-window with MD5
// content-addressed, document-scoped chunk IDs.
package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/textsplitters"
)

// Chunker splits a Document into Chunks.
type Chunker struct {
	tokenSize    int
	tokenOverlap int
	secondary    textsplitters.Splitter // optional, nil when BySeparators is disabled
}

// New builds a Chunker from cfg.
func New(cfg config.ChunkConfig) (*Chunker, error) {
	size := cfg.TokenSize
	if size <= 0 {
		size = 1200
	}
	overlap := cfg.TokenOverlap
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk: overlap %d must be >= 0 and < size %d", overlap, size)
	}

	c := &Chunker{tokenSize: size, tokenOverlap: overlap}
	if cfg.BySeparators {
		splitter, err := secondarySplitter(cfg.Strategy)
		if err != nil {
			return nil, fmt.Errorf("build secondary splitter: %w", err)
		}
		c.secondary = splitter
	}
	return c, nil
}

func secondarySplitter(strategy string) (textsplitters.Splitter, error) {
	switch strings.ToLower(strategy) {
	case "markdown":
		return textsplitters.NewFromConfig(textsplitters.Config{Kind: textsplitters.KindMarkdown})
	case "code":
		return textsplitters.NewFromConfig(textsplitters.Config{Kind: textsplitters.KindCode})
	default:
		return textsplitters.NewFromConfig(textsplitters.Config{Kind: textsplitters.KindRecursive})
	}
}

// Split produces content-addressed Chunks for doc. Chunk IDs are
// deterministic: hashing (doc.ID, content) means re-ingesting identical
// content always yields identical chunk IDs, making ingestion idempotent.
func (c *Chunker) Split(doc graphmodel.Document) []graphmodel.Chunk {
	sections := []string{doc.Content}
	if c.secondary != nil {
		if split := c.secondary.Split(doc.Content); len(split) > 0 {
			sections = split
		}
	}

	tok := textsplitters.WhitespaceTokenizer{}
	now := time.Now()
	var chunks []graphmodel.Chunk
	index := 0
	for _, section := range sections {
		for _, window := range slidingWindow(tok, section, c.tokenSize, c.tokenOverlap) {
			if strings.TrimSpace(window) == "" {
				continue
			}
			chunks = append(chunks, graphmodel.Chunk{
				ID:         chunkID(doc.ID, window),
				DocID:      doc.ID,
				Content:    window,
				Index:      index,
				TokenCount: len(tok.Tokenize(window)),
				CreatedAt:  now,
			})
			index++
		}
	}
	return chunks
}

func slidingWindow(tok textsplitters.Tokenizer, text string, size, overlap int) []string {
	tokens := tok.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, tok.Detokenize(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return out
}

// chunkID derives a content-addressed, document-scoped chunk ID. MD5 is
// used purely as a non-cryptographic dedup key, never for security.
func chunkID(docID, content string) string {
	sum := md5.Sum([]byte(docID + "\x00" + content))
	return "chunk-" + hex.EncodeToString(sum[:])
}

// DocumentID derives a content-addressed Document ID from its content, so
// re-ingesting byte-identical content resolves to the same Document.
func DocumentID(content string) string {
	sum := md5.Sum([]byte(content))
	return "doc-" + hex.EncodeToString(sum[:])
}
