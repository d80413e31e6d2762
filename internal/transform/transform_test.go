package transform

import "testing"

const sampleHTML = `<html lang="en"><head>
<title>Example Page</title>
<meta name="description" content="An example page">
<meta property="og:title" content="Example OG Title">
</head><body><a href="/about">About</a><a href="https://other.com/x">Other</a></body></html>`

func TestFromHTMLPopulatesMarkdownAndMetadataByDefault(t *testing.T) {
	doc, err := FromHTML("https://example.com/", sampleHTML, 200, "http", nil)
	if err != nil {
		t.Fatalf("from html: %v", err)
	}
	if doc.Markdown == "" {
		t.Fatalf("expected non-empty markdown")
	}
	if doc.Metadata.Title != "Example Page" {
		t.Fatalf("expected title extracted, got %q", doc.Metadata.Title)
	}
	if doc.Metadata.StatusCode != 200 {
		t.Fatalf("expected status code preserved, got %d", doc.Metadata.StatusCode)
	}
}

func TestFromHTMLExtractsAbsoluteLinks(t *testing.T) {
	doc, err := FromHTML("https://example.com/", sampleHTML, 200, "http", nil)
	if err != nil {
		t.Fatalf("from html: %v", err)
	}
	if len(doc.Links) != 2 {
		t.Fatalf("expected 2 links, got %d: %v", len(doc.Links), doc.Links)
	}
	if doc.Links[0] != "https://example.com/about" {
		t.Fatalf("expected relative link resolved absolute, got %q", doc.Links[0])
	}
}

func TestFromHTMLOnlyIncludesRequestedFormats(t *testing.T) {
	doc, err := FromHTML("https://example.com/", sampleHTML, 200, "http", []string{"html"})
	if err != nil {
		t.Fatalf("from html: %v", err)
	}
	if doc.Markdown != "" {
		t.Fatalf("expected markdown omitted when not requested, got %q", doc.Markdown)
	}
	if doc.HTML == "" {
		t.Fatalf("expected html included when requested")
	}
}

func TestFromJSONBodyLiftsTopLevelObject(t *testing.T) {
	doc := FromJSONBody("https://example.com/data", `{"ok":true,"count":3}`, 200, "http")
	if doc.Extract == nil {
		t.Fatalf("expected extract populated")
	}
	if doc.Extract["ok"] != true {
		t.Fatalf("expected ok=true in extract, got %v", doc.Extract["ok"])
	}
}
