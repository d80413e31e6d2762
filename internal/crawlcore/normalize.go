// Package crawlcore implements the Crawler Core (spec §4.E): URL
// normalization, permutation generation, include/exclude filtering,
// sitemap retrieval, link extraction, and robots.txt handling. It is
// pure aside from the configuration it is constructed with; no network
// calls happen except the explicit Sitemap/Robots fetches.
package crawlcore

import (
	"net/url"
	"strings"
)

// Canonicalize strips a URL down to its canonical form (spec §4.E):
// lowercase host, default port removed, trailing slash removed on
// root-less paths, and (per crawl options) www.-stripping and
// query-dropping.
func Canonicalize(raw string, dedupSimilar, ignoreQuery bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Host = stripDefaultPort(u.Host, u.Scheme)

	if dedupSimilar {
		u.Host = strings.TrimPrefix(u.Host, "www.")
	}
	if ignoreQuery {
		u.RawQuery = ""
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.Fragment = ""

	return u.String(), nil
}

func stripDefaultPort(host, scheme string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// Permutations produces the bundle {http/https × with/without trailing
// slash × with/without www.} for a canonical URL (spec §4.E). lock_url
// atomically adds every member of this bundle to the visited set.
func Permutations(canonical string) ([]string, error) {
	u, err := url.Parse(canonical)
	if err != nil {
		return nil, err
	}

	hosts := []string{u.Host}
	if strings.HasPrefix(u.Host, "www.") {
		hosts = append(hosts, strings.TrimPrefix(u.Host, "www."))
	} else {
		hosts = append(hosts, "www."+u.Host)
	}

	paths := []string{u.Path}
	if u.Path != "" && !strings.HasSuffix(u.Path, "/") {
		paths = append(paths, u.Path+"/")
	}

	schemes := []string{"http", "https"}

	seen := make(map[string]struct{})
	var out []string
	for _, scheme := range schemes {
		for _, host := range hosts {
			for _, path := range paths {
				v := *u
				v.Scheme = scheme
				v.Host = host
				v.Path = path
				s := v.String()
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// RegisteredDomain returns the eTLD+1-ish domain used for same-domain
// comparisons. This repo does not vendor a public-suffix list (out of
// scope for the crawl coordination core); it takes the last two labels
// of the host, which is correct for the overwhelming majority of
// single-label TLDs and is the same heuristic the teacher's link
// extraction used for same-domain checks.
func RegisteredDomain(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
