package crawlcore

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsTxtPath is the well-known location robots.txt is fetched from,
// resolved against the crawl's origin exactly once per crawl (spec
// §4.E "fetch once per crawl").
const robotsTxtPath = "/robots.txt"

// FetchRobotsGroup fetches and parses robots.txt for origin, returning
// the group matching userAgent. A missing or unparseable robots.txt
// yields a nil group, which callers treat as "everything allowed" —
// same default-allow behavior codepr-webcrawler's CrawlingRules uses.
func FetchRobotsGroup(client *http.Client, origin, userAgent string, timeout time.Duration) (*robotstxt.Group, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	target := base.ResolveReference(&url.URL{Path: robotsTxtPath})

	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots.txt fetch returned status %d", resp.StatusCode)
	}

	doc, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, nil
	}
	return doc.FindGroup(userAgent), nil
}
