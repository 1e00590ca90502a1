// Package preprocess converts HTML-sourced document content to clean
// markdown before it reaches the chunker, per spec §6's document
// preprocessing surface. Plain-text documents pass through unchanged.
package preprocess

import (
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"

	"graphrag/internal/errs"
)

// IsHTML sniffs content by its leading non-whitespace byte, the same
// heuristic used throughout the corpus for content-type-less document
// intake: HTML content starts with '<' once leading whitespace is
// trimmed.
func IsHTML(content string) bool {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	return strings.HasPrefix(trimmed, "<")
}

// Convert extracts the main article (falling back to the full document
// when extraction finds nothing readable) and renders it to markdown.
// sourceURL anchors relative links and may be empty.
func Convert(content, sourceURL string) (string, error) {
	base, _ := url.Parse(sourceURL)

	articleHTML := content
	var title string
	if art, err := readability.FromReader(strings.NewReader(content), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	opts := []converter.Option{}
	if base != nil && base.Host != "" {
		opts = append(opts, converter.WithDomain(base.Scheme+"://"+base.Host))
	}
	md, err := htmltomarkdown.ConvertString(articleHTML, opts...)
	if err != nil {
		return "", errs.Wrap(errs.ContractViolation, "ingest.preprocess", "html to markdown", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return md, nil
}

// Document normalizes raw content before chunking: HTML is converted to
// markdown, everything else passes through untouched.
func Document(content, sourceURL string, htmlPreprocessEnabled bool) (string, error) {
	if !htmlPreprocessEnabled || !IsHTML(content) {
		return content, nil
	}
	return Convert(content, sourceURL)
}
