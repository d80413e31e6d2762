// Package transform implements the Scrape Pipeline's post-fetch stage
// (spec §4.G step 3e): turning an engine's raw HTML into a Document's
// markdown/links/metadata, rewriting relative URLs to absolute, and
// lifting an inner JSON object out of application/json bodies.
package transform

import (
	"encoding/json"
	"net/url"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"raito/internal/crawlcore"
	"raito/internal/model"
)

// FromHTML converts a fetched page into a Document, adapted from the
// teacher's HTTPScraper/RodScraper metadata extraction.
func FromHTML(rawURL, html string, statusCode int, engineName string, formats []string) (model.Document, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return model.Document{}, err
	}

	doc := model.Document{
		Engine: engineName,
		Metadata: model.Metadata{
			SourceURL:  rawURL,
			URL:        rawURL,
			StatusCode: statusCode,
		},
	}

	parsed, perr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if perr != nil {
		if wantsFormat(formats, "html") {
			doc.HTML = html
		}
		if wantsFormat(formats, "rawHtml") {
			doc.RawHTML = html
		}
		return doc, nil
	}

	if wantsFormat(formats, "markdown") || len(formats) == 0 {
		converter := htmlmd.NewConverter(base.Hostname(), true, nil)
		markdown, mdErr := converter.ConvertString(html)
		if mdErr != nil {
			markdown = parsed.Text()
		}
		doc.Markdown = markdown
	}
	if wantsFormat(formats, "html") {
		doc.HTML = html
	}
	if wantsFormat(formats, "rawHtml") {
		doc.RawHTML = html
	}
	if wantsFormat(formats, "links") || len(formats) == 0 {
		links, lerr := crawlcore.ExtractLinks(html, base)
		if lerr == nil {
			doc.Links = links
		}
	}

	doc.Metadata = extractMetadata(parsed, base, statusCode)

	if wantsFormat(formats, "json") {
		if extract, ok := tryExtractJSON(html); ok {
			doc.Extract = extract
		}
	}

	return doc, nil
}

// FromJSONBody lifts an application/json response body's top-level
// object into Document.Extract, the "optional JSON inner extraction
// for application/json bodies" spec §4.G step 3e names.
func FromJSONBody(rawURL, body string, statusCode int, engineName string) model.Document {
	doc := model.Document{
		Engine: engineName,
		Metadata: model.Metadata{
			SourceURL:  rawURL,
			URL:        rawURL,
			StatusCode: statusCode,
		},
	}
	if extract, ok := tryExtractJSON(body); ok {
		doc.Extract = extract
	}
	return doc
}

func tryExtractJSON(body string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, false
	}
	return out, true
}

func wantsFormat(formats []string, name string) bool {
	for _, f := range formats {
		if f == name {
			return true
		}
	}
	return false
}

func extractMetadata(doc *goquery.Document, base *url.URL, statusCode int) model.Metadata {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc := doc.Find("meta[name=description]").AttrOr("content", "")
	lang, _ := doc.Find("html").First().Attr("lang")

	ogTitle := doc.Find("meta[property=og:title]").AttrOr("content", "")
	ogDesc := doc.Find("meta[property=og:description]").AttrOr("content", "")
	ogURL := doc.Find("meta[property=og:url]").AttrOr("content", "")
	ogImage := doc.Find("meta[property=og:image]").AttrOr("content", "")
	ogSiteName := doc.Find("meta[property=og:site_name]").AttrOr("content", "")

	sourceURL := base.String()
	if canonical := doc.Find("link[rel=canonical]").AttrOr("href", ""); canonical != "" {
		if cu, err := url.Parse(canonical); err == nil {
			if !cu.IsAbs() {
				cu = base.ResolveReference(cu)
			}
			sourceURL = cu.String()
		}
	}

	return model.Metadata{
		Title:         title,
		Description:   desc,
		Language:      lang,
		OgTitle:       ogTitle,
		OgDescription: ogDesc,
		OgURL:         ogURL,
		OgImage:       ogImage,
		OgSiteName:    ogSiteName,
		SourceURL:     sourceURL,
		URL:           base.String(),
		StatusCode:    statusCode,
	}
}
