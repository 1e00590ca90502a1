package preprocess

import "testing"

func TestIsHTMLDetectsLeadingTag(t *testing.T) {
	if !IsHTML("  \n<html><body>hi</body></html>") {
		t.Fatal("expected HTML content to be detected")
	}
	if IsHTML("just plain text") {
		t.Fatal("expected plain text to not be detected as HTML")
	}
}

func TestDocumentPassesThroughWhenDisabled(t *testing.T) {
	html := "<p>hello</p>"
	out, err := Document(html, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != html {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestDocumentPassesThroughPlainText(t *testing.T) {
	text := "just plain text"
	out, err := Document(text, "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != text {
		t.Fatalf("expected passthrough for non-HTML, got %q", out)
	}
}

func TestDocumentConvertsHTMLToMarkdown(t *testing.T) {
	html := "<html><body><h1>Title</h1><p>Some <b>bold</b> text.</p></body></html>"
	out, err := Document(html, "https://example.com/article", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == html {
		t.Fatal("expected HTML to be converted, got unchanged input")
	}
}
