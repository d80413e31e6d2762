package crawlcore

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks resolves every <a href> in html against base, returning
// absolute http/https URLs with fragments stripped, in document order
// (spec §4.E "tie-breaking in link-iteration order is insertion order
// as returned by the parser").
func ExtractLinks(html string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		links = append(links, linkURL.String())
	})
	return links, nil
}
