// Package model defines the entities shared across the job pipeline and
// crawl coordination subsystem: scrape jobs, crawls, documents, and the
// engine capability bit-set.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode identifies how a ScrapeJob entered the pipeline.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeCrawlChild Mode = "crawl-child"
	ModeKickoff    Mode = "kickoff"
)

// Plan is a tenant's billing tier, used to look up its concurrency
// ceiling and priority-scoring thresholds.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanHobby      Plan = "hobby"
	PlanStandard   Plan = "standard"
	PlanGrowth     Plan = "growth"
	PlanScale      Plan = "scale"
	PlanEnterprise Plan = "enterprise"
	PlanSystem     Plan = "system"
)

// Location carries per-request geo/language hints that engines translate
// into headers (Accept-Language) or proxy selection.
type Location struct {
	Country   string   `json:"country,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// Action is a single scripted browser step (click, wait, write, scroll,
// executeJavascript, ...). The action's own semantics are opaque to the
// core; only its presence drives the `actions` feature flag.
type Action struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	MillisWait int  `json:"milliseconds,omitempty"`
}

// ProxyTier selects the stealth level an engine should use when fetching.
type ProxyTier string

const (
	ProxyBasic   ProxyTier = "basic"
	ProxyStealth ProxyTier = "stealth"
)

// ScrapeOptions is the caller-controlled shape of a single fetch: output
// formats, headers, the scripted action list, and engine hints.
type ScrapeOptions struct {
	Formats        []string          `json:"formats,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutMs      int               `json:"timeoutMs,omitempty"`
	WaitForMs      int               `json:"waitForMs,omitempty"`
	SkipTLSVerify  bool              `json:"skipTlsVerify,omitempty"`
	BlockAds       bool              `json:"blockAds,omitempty"`
	ProxyTier      ProxyTier         `json:"proxyTier,omitempty"`
	Actions        []Action          `json:"actions,omitempty"`
	Location       *Location         `json:"location,omitempty"`
	Mobile         bool              `json:"mobile,omitempty"`
	FullPageScreenshot bool          `json:"fullPageScreenshot,omitempty"`
}

// InternalOptions carries operator-only controls that never originate
// from an untrusted caller payload.
type InternalOptions struct {
	ForceEngine       string `json:"forceEngine,omitempty"`
	ZeroDataRetention bool   `json:"zeroDataRetention,omitempty"`
	// Priority is the base priority contribution before the per-tenant
	// load penalty is added by the Job Priority Scorer (spec §4.C).
	Priority float64 `json:"priority"`
}

// Webhook describes where and what to notify on crawl/batch lifecycle
// events (spec §6).
type Webhook struct {
	URL      string                 `json:"url"`
	Headers  map[string]string      `json:"headers,omitempty"`
	Events   []string               `json:"events,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ScrapeJob is a single unit of fetch-and-transform work admitted into
// the scheduler (spec §3 "ScrapeJob").
type ScrapeJob struct {
	ID              uuid.UUID        `json:"id"`
	URL             string           `json:"url"`
	Mode            Mode             `json:"mode"`
	TenantID        uuid.UUID        `json:"tenantId"`
	Plan            Plan             `json:"plan"`
	CrawlID         string           `json:"crawlId,omitempty"`
	Depth           int              `json:"depth"`
	ScrapeOptions   ScrapeOptions    `json:"scrapeOptions"`
	InternalOptions InternalOptions  `json:"internalOptions"`
	Origin          string           `json:"origin,omitempty"`
	Webhook         *Webhook         `json:"webhook,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// CrawlerOptions controls crawl-wide link discovery (spec §3 "Crawl").
type CrawlerOptions struct {
	IncludePaths           []string `json:"includePaths,omitempty"`
	ExcludePaths           []string `json:"excludePaths,omitempty"`
	MaxDepth               int      `json:"maxDepth,omitempty"`
	Limit                  int      `json:"limit,omitempty"`
	IgnoreSitemap          bool     `json:"ignoreSitemap,omitempty"`
	IgnoreRobotsTxt        bool     `json:"ignoreRobotsTxt,omitempty"`
	AllowExternalLinks     bool     `json:"allowExternalLinks,omitempty"`
	AllowBackwardLinks     bool     `json:"allowBackwardLinks,omitempty"`
	DeduplicateSimilarURLs bool     `json:"deduplicateSimilarUrls,omitempty"`
	IgnoreQueryParameters  bool     `json:"ignoreQueryParameters,omitempty"`
	AllowSubdomains        bool     `json:"allowSubdomains,omitempty"`
}

// Crawl is the root descriptor for a recursive crawl (spec §3 "Crawl").
type Crawl struct {
	ID              string          `json:"id"`
	OriginURL       string          `json:"originUrl"`
	TenantID        uuid.UUID       `json:"tenantId"`
	CrawlerOptions  CrawlerOptions  `json:"crawlerOptions"`
	ScrapeOptions   ScrapeOptions   `json:"scrapeOptions"`
	InternalOptions InternalOptions `json:"internalOptions"`
	RobotsTxt       string          `json:"robotsTxt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Webhook         *Webhook        `json:"webhook,omitempty"`
}

// Metadata is the per-document metadata block (spec §3 "Document").
type Metadata struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	OgTitle       string `json:"ogTitle,omitempty"`
	OgDescription string `json:"ogDescription,omitempty"`
	OgURL         string `json:"ogUrl,omitempty"`
	OgImage       string `json:"ogImage,omitempty"`
	OgSiteName    string `json:"ogSiteName,omitempty"`
	SourceURL     string `json:"sourceURL,omitempty"`
	URL           string `json:"url,omitempty"`
	StatusCode    int    `json:"statusCode"`
	Error         string `json:"error,omitempty"`
}

// Document is the pipeline's output record (spec §3 "Document"): at most
// one of each requested format, plus metadata.
type Document struct {
	Markdown   string         `json:"markdown,omitempty"`
	HTML       string         `json:"html,omitempty"`
	RawHTML    string         `json:"rawHtml,omitempty"`
	Links      []string       `json:"links,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
	Extract    map[string]any `json:"extract,omitempty"`
	Metadata   Metadata       `json:"metadata"`
	Engine     string         `json:"engine,omitempty"`
}
