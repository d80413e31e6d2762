package crawlcore

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"time"
)

// sitemapCandidates are the common variants tried in order (spec §4.E
// "Attempt origin/sitemap.xml and common variants").
var sitemapCandidates = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap/sitemap.xml",
}

// SitemapURL is one entry discovered from a sitemap, with its optional
// priority hint preserved.
type SitemapURL struct {
	Loc      string
	Priority float64
}

type urlSetXML struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapIndexXML struct {
	XMLName  xml.Name        `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc      string  `xml:"loc"`
	Priority float64 `xml:"priority"`
}

// FetchSitemap attempts origin/sitemap.xml and the common variants,
// returning the first one that parses. A sitemap index is followed one
// level deep, flattening its sub-sitemaps' entries into a single list.
// Absence of any sitemap is not an error: it returns an empty slice.
func FetchSitemap(client *http.Client, origin string, timeout time.Duration) ([]SitemapURL, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}

	for _, candidate := range sitemapCandidates {
		target := base.ResolveReference(&url.URL{Path: candidate})
		entries, ok := fetchOneSitemap(client, target.String(), timeout)
		if ok {
			return entries, nil
		}
	}
	return nil, nil
}

// fetchOneSitemap parses target as either an urlset or a sitemapindex.
// An index's sub-sitemaps are fetched and flattened one level deep;
// a sub-sitemap that is itself an index is not followed further.
func fetchOneSitemap(client *http.Client, target string, timeout time.Duration) ([]SitemapURL, bool) {
	body, ok := fetchSitemapBody(client, target, timeout)
	if !ok {
		return nil, false
	}

	var set urlSetXML
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		out := make([]SitemapURL, 0, len(set.URLs))
		for _, e := range set.URLs {
			out = append(out, SitemapURL{Loc: e.Loc, Priority: e.Priority})
		}
		return out, true
	}

	var idx sitemapIndexXML
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		var out []SitemapURL
		for _, sub := range idx.Sitemaps {
			subBody, ok := fetchSitemapBody(client, sub.Loc, timeout)
			if !ok {
				continue
			}
			var subSet urlSetXML
			if err := xml.Unmarshal(subBody, &subSet); err == nil {
				for _, e := range subSet.URLs {
					out = append(out, SitemapURL{Loc: e.Loc, Priority: e.Priority})
				}
			}
		}
		return out, len(out) > 0
	}

	return nil, false
}

// maxSitemapBytes caps how much of a single sitemap document is read,
// guarding against a misbehaving origin serving an unbounded body.
const maxSitemapBytes = 16 * 1024 * 1024

func fetchSitemapBody(client *http.Client, target string, timeout time.Duration) ([]byte, bool) {
	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, false
	}
	return body, true
}
