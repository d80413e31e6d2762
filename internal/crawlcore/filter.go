package crawlcore

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/temoto/robotstxt"
)

// FilterOptions mirrors the crawler_options fields that affect
// filter_url (spec §4.E).
type FilterOptions struct {
	IncludePaths       []*regexp.Regexp
	ExcludePaths       []*regexp.Regexp
	MaxDepth           int
	AllowExternalLinks bool
	AllowBackwardLinks bool
	AllowSubdomains    bool
	IgnoreRobotsTxt    bool
}

// CompileFilterOptions compiles the string regex configuration from a
// model.CrawlerOptions-shaped input into FilterOptions. Invalid
// patterns are skipped rather than rejecting the whole crawl, matching
// the teacher's defensive parsing style elsewhere in the codebase.
func CompileFilterOptions(includePaths, excludePaths []string, maxDepth int, allowExternal, allowBackward, allowSubdomains, ignoreRobots bool) FilterOptions {
	opts := FilterOptions{
		MaxDepth:           maxDepth,
		AllowExternalLinks: allowExternal,
		AllowBackwardLinks: allowBackward,
		AllowSubdomains:    allowSubdomains,
		IgnoreRobotsTxt:    ignoreRobots,
	}
	for _, p := range includePaths {
		if re, err := regexp.Compile(p); err == nil {
			opts.IncludePaths = append(opts.IncludePaths, re)
		}
	}
	for _, p := range excludePaths {
		if re, err := regexp.Compile(p); err == nil {
			opts.ExcludePaths = append(opts.ExcludePaths, re)
		}
	}
	return opts
}

// FilterURL implements spec §4.E's filter_url: returns the candidate
// unchanged if it survives every check, or "" if it should be dropped.
// robotsGroup may be nil when robots.txt was not fetched or
// ignore_robots_txt is set.
func FilterURL(candidate, sourceURL string, depth int, opts FilterOptions, robotsGroup *robotstxt.Group, userAgent string) string {
	c, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	src, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}

	if !opts.AllowExternalLinks {
		if opts.AllowSubdomains {
			if RegisteredDomain(c.Host) != RegisteredDomain(src.Host) {
				return ""
			}
		} else if !strings.EqualFold(c.Host, src.Host) {
			return ""
		}
	}

	if !opts.AllowBackwardLinks && !isForwardOrSamePath(src.Path, c.Path) {
		return ""
	}

	for _, re := range opts.ExcludePaths {
		if re.MatchString(c.Path) {
			return ""
		}
	}

	if len(opts.IncludePaths) > 0 {
		matched := false
		for _, re := range opts.IncludePaths {
			if re.MatchString(c.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return ""
		}
	}

	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return ""
	}

	if !opts.IgnoreRobotsTxt && robotsGroup != nil {
		if !robotsGroup.Test(c.Path) {
			return ""
		}
	}

	return candidate
}

// isForwardOrSamePath reports whether candidatePath is the same as or
// a descendant of sourcePath, the "same-or-forward path" check spec
// §4.E names when allow_backward_links is unset.
func isForwardOrSamePath(sourcePath, candidatePath string) bool {
	sourcePath = strings.TrimSuffix(sourcePath, "/")
	if sourcePath == "" {
		return true
	}
	return candidatePath == sourcePath || strings.HasPrefix(candidatePath, sourcePath+"/")
}
