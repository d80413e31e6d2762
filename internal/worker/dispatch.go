package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/temoto/robotstxt"

	"raito/internal/crawlcore"
	"raito/internal/model"
	"raito/internal/priority"
)

// robotsGroupFor fetches and caches the robots.txt group for a crawl's
// origin, fetched at most once per crawl (spec §4.E, grounded on
// codepr-webcrawler's CrawlingRules pattern). A fetch failure caches a
// nil group, meaning "allow everything", rather than retrying on every
// subsequent child job.
func (w *Worker) robotsGroupFor(crawlID, pageURL string) *robotstxt.Group {
	if cached, ok := w.robots.Load(crawlID); ok {
		group, _ := cached.(*robotstxt.Group)
		return group
	}

	origin, err := url.Parse(pageURL)
	if err != nil {
		w.robots.Store(crawlID, (*robotstxt.Group)(nil))
		return nil
	}
	group, err := crawlcore.FetchRobotsGroup(http.DefaultClient, origin.Scheme+"://"+origin.Host, "raito-crawler", sitemapFetchTimeout)
	if err != nil {
		w.robots.Store(crawlID, (*robotstxt.Group)(nil))
		return nil
	}
	w.robots.Store(crawlID, group)
	return group
}

// sitemapFetchTimeout bounds the kickoff job's sitemap/robots fetches;
// these run once per crawl, not per page, so a generous fixed budget is
// simpler than threading crawl-specific timeouts through config.
const sitemapFetchTimeout = 15 * time.Second

// runKickoff implements spec §4.H step 4's "kickoff" dispatch: read the
// sitemap (unless ignored), lock and enqueue a child job per discovered
// URL, then finish kickoff. handle then attempts finalization through
// finalizeCrawlStep, which covers the zero-link-discovered edge case.
func (w *Worker) runKickoff(ctx context.Context, job model.ScrapeJob) error {
	crawl, found, err := w.registry.GetCrawl(ctx, job.CrawlID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("kickoff: crawl %s not found", job.CrawlID)
	}

	if cancelled, err := w.registry.IsCancelled(ctx, job.CrawlID); err != nil {
		return err
	} else if cancelled {
		return &model.CancelledError{ID: job.CrawlID}
	}

	opts := crawlcore.CompileFilterOptions(
		crawl.CrawlerOptions.IncludePaths,
		crawl.CrawlerOptions.ExcludePaths,
		crawl.CrawlerOptions.MaxDepth,
		crawl.CrawlerOptions.AllowExternalLinks,
		crawl.CrawlerOptions.AllowBackwardLinks,
		crawl.CrawlerOptions.AllowSubdomains,
		crawl.CrawlerOptions.IgnoreRobotsTxt,
	)
	var robotsGroup *robotstxt.Group
	if !crawl.CrawlerOptions.IgnoreRobotsTxt {
		robotsGroup = w.robotsGroupFor(job.CrawlID, crawl.OriginURL)
	}

	var sitemapCandidates []string
	if !crawl.CrawlerOptions.IgnoreSitemap {
		origin, err := url.Parse(crawl.OriginURL)
		if err == nil {
			sitemapURLs, _ := crawlcore.FetchSitemap(http.DefaultClient, origin.Scheme+"://"+origin.Host, sitemapFetchTimeout)
			for _, su := range sitemapURLs {
				kept := crawlcore.FilterURL(su.Loc, crawl.OriginURL, 0, opts, robotsGroup, "raito-crawler")
				if kept != "" {
					sitemapCandidates = append(sitemapCandidates, kept)
				}
			}
		}
	}

	// The origin URL is the crawl's own seed: exempt from
	// include/exclude/robots filtering, but still subject to
	// crawler_options.limit like every other discovered candidate.
	candidates := append([]string{crawl.OriginURL}, sitemapCandidates...)

	enrolled, err := w.registry.EnrolledCount(ctx, job.CrawlID)
	if err != nil {
		return err
	}
	limit := int64(crawl.CrawlerOptions.Limit)

	var childJobIDs []string
	for _, raw := range candidates {
		if limit > 0 && enrolled >= limit {
			break
		}

		canonical, err := crawlcore.Canonicalize(raw, crawl.CrawlerOptions.DeduplicateSimilarURLs, crawl.CrawlerOptions.IgnoreQueryParameters)
		if err != nil {
			continue
		}
		locked, err := w.registry.LockURL(ctx, job.CrawlID, canonical)
		if err != nil || !locked {
			continue
		}

		child := model.ScrapeJob{
			ID:              uuid.New(),
			URL:             canonical,
			Mode:            model.ModeCrawlChild,
			TenantID:        job.TenantID,
			Plan:            job.Plan,
			CrawlID:         job.CrawlID,
			Depth:           0,
			ScrapeOptions:   crawl.ScrapeOptions,
			InternalOptions: crawl.InternalOptions,
			Origin:          crawl.OriginURL,
			Webhook:         crawl.Webhook,
			CreatedAt:       job.CreatedAt,
		}
		childJobIDs = append(childJobIDs, child.ID.String())
		enrolled++

		inflight, _ := w.admission.InflightCount(ctx, job.TenantID.String())
		score := w.scorer.Score(string(job.Plan), inflight, priority.BaseSitemap)
		if err := w.queue.Enqueue(ctx, child, score); err != nil {
			w.logger.Error("enqueue kickoff child", "crawl_id", job.CrawlID, "error", err)
			continue
		}
	}

	if len(childJobIDs) > 0 {
		if err := w.registry.AddCrawlJobs(ctx, job.CrawlID, childJobIDs); err != nil {
			return err
		}
	}

	if err := w.registry.FinishKickoff(ctx, job.CrawlID); err != nil {
		return err
	}
	return nil
}

// runScrape implements spec §4.H step 4's "single"/"crawl-child"
// dispatch: run the Scrape Pipeline, then for crawl-attached jobs
// detect redirect-mismatch races and fan out discovered links.
func (w *Worker) runScrape(ctx context.Context, job model.ScrapeJob) error {
	if job.CrawlID != "" {
		if cancelled, err := w.registry.IsCancelled(ctx, job.CrawlID); err != nil {
			return err
		} else if cancelled {
			return &model.CancelledError{ID: job.CrawlID}
		}
	}

	doc, err := w.pipeline.Run(ctx, job)
	if err != nil {
		return err
	}

	if job.CrawlID == "" {
		return nil
	}

	if doc.Metadata.URL != "" && doc.Metadata.URL != job.URL {
		sourceCanonical, cerr := crawlcore.Canonicalize(job.URL, false, false)
		resultCanonical, rerr := crawlcore.Canonicalize(doc.Metadata.URL, false, false)
		if cerr == nil && rerr == nil && sourceCanonical != resultCanonical {
			locked, err := w.registry.LockURL(ctx, job.CrawlID, resultCanonical)
			if err != nil {
				return err
			}
			if !locked {
				// Another in-flight job already claims the redirected
				// target; this attempt's result is a duplicate, spec
				// §4.H step 4(i) "RacedRedirectError... swallowed as
				// silent failure".
				return &model.RacedRedirectError{RequestedURL: job.URL, FinalURL: doc.Metadata.URL}
			}
		}
	}

	return w.enqueueDiscoveredLinks(ctx, job, doc)
}

func (w *Worker) enqueueDiscoveredLinks(ctx context.Context, job model.ScrapeJob, doc model.Document) error {
	crawl, found, err := w.registry.GetCrawl(ctx, job.CrawlID)
	if err != nil || !found {
		return err
	}

	opts := crawlcore.CompileFilterOptions(
		crawl.CrawlerOptions.IncludePaths,
		crawl.CrawlerOptions.ExcludePaths,
		crawl.CrawlerOptions.MaxDepth,
		crawl.CrawlerOptions.AllowExternalLinks,
		crawl.CrawlerOptions.AllowBackwardLinks,
		crawl.CrawlerOptions.AllowSubdomains,
		crawl.CrawlerOptions.IgnoreRobotsTxt,
	)

	var robotsGroup *robotstxt.Group
	if !crawl.CrawlerOptions.IgnoreRobotsTxt {
		robotsGroup = w.robotsGroupFor(job.CrawlID, job.URL)
	}

	enrolled, err := w.registry.EnrolledCount(ctx, job.CrawlID)
	if err != nil {
		return err
	}
	limit := int64(crawl.CrawlerOptions.Limit)

	var childJobIDs []string
	for _, link := range doc.Links {
		if limit > 0 && enrolled >= limit {
			break
		}

		if cancelled, err := w.registry.IsCancelled(ctx, job.CrawlID); err != nil {
			return err
		} else if cancelled {
			return &model.CancelledError{ID: job.CrawlID}
		}

		kept := crawlcore.FilterURL(link, job.URL, job.Depth+1, opts, robotsGroup, "raito-crawler")
		if kept == "" {
			continue
		}

		canonical, err := crawlcore.Canonicalize(kept, crawl.CrawlerOptions.DeduplicateSimilarURLs, crawl.CrawlerOptions.IgnoreQueryParameters)
		if err != nil {
			continue
		}
		locked, err := w.registry.LockURL(ctx, job.CrawlID, canonical)
		if err != nil || !locked {
			continue
		}

		child := model.ScrapeJob{
			ID:              uuid.New(),
			URL:             canonical,
			Mode:            model.ModeCrawlChild,
			TenantID:        job.TenantID,
			Plan:            job.Plan,
			CrawlID:         job.CrawlID,
			Depth:           job.Depth + 1,
			ScrapeOptions:   crawl.ScrapeOptions,
			InternalOptions: crawl.InternalOptions,
			Origin:          crawl.OriginURL,
			Webhook:         crawl.Webhook,
			CreatedAt:       job.CreatedAt,
		}
		childJobIDs = append(childJobIDs, child.ID.String())
		enrolled++

		inflight, _ := w.admission.InflightCount(ctx, job.TenantID.String())
		score := w.scorer.Score(string(job.Plan), inflight, priority.BaseDiscoveredLink)
		if err := w.queue.Enqueue(ctx, child, score); err != nil {
			w.logger.Error("enqueue discovered link", "crawl_id", job.CrawlID, "error", err)
			continue
		}
	}

	if len(childJobIDs) > 0 {
		return w.registry.AddCrawlJobs(ctx, job.CrawlID, childJobIDs)
	}
	return nil
}
