// Package pipeline implements the Scrape Pipeline (spec §4.G):
// executes a single scrape request to a Document, traversing the
// fallback engine list under a deadline, with add/remove-feature
// restarts.
package pipeline

import (
	"context"
	"errors"
	"time"

	"raito/internal/engine"
	"raito/internal/model"
	"raito/internal/transform"
)

// defaultTimeout is used when the request sets no explicit timeout
// (spec §4.G step 2: "default 300 s if unset").
const defaultTimeout = 300 * time.Second

// Tracker records why each attempted engine failed during one Run.
// NoEnginesLeftError does not carry it: that error holds only the URL,
// so the per-engine reasons are not visible to callers.
type Tracker map[string]error

// Pipeline runs the fallback loop against a Registry.
type Pipeline struct {
	registry *engine.Registry
}

func New(registry *engine.Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Run executes job to completion or exhaustion (spec §4.G algorithm).
func (p *Pipeline) Run(ctx context.Context, job model.ScrapeJob) (model.Document, error) {
	required := engine.RequiredFeatures(job.ScrapeOptions)

	timeout := time.Duration(job.ScrapeOptions.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	deadline := time.Now().Add(timeout)

	tracker := make(Tracker)

	for {
		fallback := p.registry.Plan(required, job.InternalOptions.ForceEngine)
		fallback = excludeAttempted(fallback, tracker)
		if len(fallback) == 0 {
			return model.Document{}, &model.NoEnginesLeftError{URL: job.URL}
		}

		restart, restartRequired, doc, err := p.attemptFallback(ctx, job, fallback, deadline, required, tracker)
		if restart {
			required = restartRequired
			continue
		}
		return doc, err
	}
}

// attemptFallback walks fallback in order until success, deadline
// expiry, exhaustion, or a restart-triggering error.
func (p *Pipeline) attemptFallback(
	ctx context.Context,
	job model.ScrapeJob,
	fallback []engine.Candidate,
	deadline time.Time,
	required model.Feature,
	tracker Tracker,
) (restart bool, restartRequired model.Feature, doc model.Document, err error) {
	for _, candidate := range fallback {
		now := time.Now()
		if !now.Before(deadline) {
			return false, 0, model.Document{}, &model.NoEnginesLeftError{URL: job.URL}
		}
		timeToRun := deadline.Sub(now).Milliseconds()

		result, handleErr := candidate.Handler.Handle(ctx, job, timeToRun)
		if handleErr == nil {
			built, buildErr := buildDocument(job, result, candidate.Descriptor.Name)
			if buildErr != nil {
				tracker[candidate.Descriptor.Name] = buildErr
				continue
			}
			return false, 0, built, nil
		}

		var addFeature *model.AddFeatureError
		if errors.As(handleErr, &addFeature) {
			tracker[candidate.Descriptor.Name] = handleErr
			return true, required | featureFromName(addFeature.Feature), model.Document{}, nil
		}

		var removeFeature *model.RemoveFeatureError
		if errors.As(handleErr, &removeFeature) {
			tracker[candidate.Descriptor.Name] = handleErr
			return true, required &^ featureFromName(removeFeature.Feature), model.Document{}, nil
		}

		tracker[candidate.Descriptor.Name] = handleErr
	}

	return false, 0, model.Document{}, &model.NoEnginesLeftError{URL: job.URL}
}

// excludeAttempted drops engines the tracker already recorded a
// failure for, so a restart (spec §4.G step 3b/3c) moves on to the
// remaining engines instead of re-offering one that just raised an
// add/remove-feature error and would raise it again.
func excludeAttempted(fallback []engine.Candidate, tracker Tracker) []engine.Candidate {
	if len(tracker) == 0 {
		return fallback
	}
	out := fallback[:0:0]
	for _, c := range fallback {
		if _, tried := tracker[c.Descriptor.Name]; !tried {
			out = append(out, c)
		}
	}
	return out
}

func buildDocument(job model.ScrapeJob, result engine.Result, engineName string) (model.Document, error) {
	if result.ContentType == "application/json" {
		return transform.FromJSONBody(result.URL, result.HTML, result.StatusCode, engineName), nil
	}

	doc, err := transform.FromHTML(result.URL, result.HTML, result.StatusCode, engineName, job.ScrapeOptions.Formats)
	if err != nil {
		return model.Document{}, err
	}
	if len(result.Screenshot) > 0 {
		doc.Screenshot = string(result.Screenshot)
	}
	return doc, nil
}

// featureNames maps the string feature names an engine may name in
// AddFeatureError/RemoveFeatureError back onto the bit-set.
var featureNames = map[string]model.Feature{
	"actions":              model.FeatureActions,
	"wait_for":             model.FeatureWaitFor,
	"screenshot":           model.FeatureScreenshot,
	"full_page_screenshot": model.FeatureFullPageScreenshot,
	"mobile":               model.FeatureMobile,
	"stealth_proxy":        model.FeatureProxyStealth,
	"block_ads":            model.FeatureBlockAds,
	"skip_tls":             model.FeatureSkipTLSVerify,
}

func featureFromName(name string) model.Feature {
	return featureNames[name]
}
