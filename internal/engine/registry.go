// Package engine implements the Engine Registry & Fallback Planner
// (spec §4.F): for a scrape request, produces an ordered list of
// engines satisfying the request's required feature flags.
package engine

import (
	"context"
	"sort"

	"raito/internal/model"
)

// Result is what a Handler returns on success (spec §4.G step 3a).
type Result struct {
	URL         string
	StatusCode  int
	HTML        string
	ContentType string
	Screenshot  []byte
	ProxyUsed   string
}

// Handler is the opaque fetcher interface every engine implements.
// Handlers never see the pipeline's fallback state; they either
// succeed or raise one of the model error types.
type Handler interface {
	Handle(ctx context.Context, job model.ScrapeJob, timeToRun int64) (Result, error)
}

// featurePriority weighs each feature's contribution to support_score
// (spec §4.F step 1: "Σ priority(f) for f in required ∩ capabilities").
// Weights are uniform since the spec does not name per-feature
// weights beyond "priority(f)" — every required feature counts once.
var featurePriority = map[model.Feature]int{
	model.FeatureActions:            1,
	model.FeatureWaitFor:            1,
	model.FeatureScreenshot:         1,
	model.FeatureFullPageScreenshot: 1,
	model.FeatureMobile:             1,
	model.FeatureProxyStealth:       1,
	model.FeatureBlockAds:           1,
	model.FeatureSkipTLSVerify:      1,
}

// entry pairs a descriptor with its handler and registration order
// (used as the stable-sort tiebreaker).
type entry struct {
	descriptor model.EngineDescriptor
	handler    Handler
	order      int
}

// Registry holds every registered engine and the runtime capability
// filter (external URLs configured, library present) that determines
// which of them are actually usable.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an engine. Engines whose runtime prerequisites are not
// satisfied (e.g. no headless-browser binary available) should simply
// not be registered, per spec §4.F "filtered by runtime availability."
func (r *Registry) Register(descriptor model.EngineDescriptor, handler Handler) {
	r.entries = append(r.entries, entry{descriptor: descriptor, handler: handler, order: len(r.entries)})
}

// Candidate is one ranked engine from Plan, paired with the features
// of the request it does not support.
type Candidate struct {
	Descriptor          model.EngineDescriptor
	Handler             Handler
	UnsupportedFeatures model.Feature
}

func requiredWeight(required model.Feature) int {
	total := 0
	for f, weight := range featurePriority {
		if required&f != 0 {
			total += weight
		}
	}
	return total
}

func supportScore(required model.Feature, d model.EngineDescriptor) int {
	score := 0
	for f, weight := range featurePriority {
		if required&f != 0 && d.Capabilities&f != 0 {
			score += weight
		}
	}
	return score
}

// Plan implements spec §4.F's plan(request) algorithm.
func (r *Registry) Plan(required model.Feature, forceEngine string) []Candidate {
	if forceEngine != "" {
		for _, e := range r.entries {
			if e.descriptor.Name == forceEngine {
				return []Candidate{{
					Descriptor:          e.descriptor,
					Handler:             e.handler,
					UnsupportedFeatures: required &^ e.descriptor.Capabilities,
				}}
			}
		}
		return nil
	}

	threshold := requiredWeight(required) / 2

	var survivors []entry
	for _, e := range r.entries {
		if supportScore(required, e.descriptor) >= threshold {
			survivors = append(survivors, e)
		}
	}

	hasPositiveQuality := false
	for _, e := range survivors {
		if e.descriptor.Quality > 0 {
			hasPositiveQuality = true
			break
		}
	}
	if hasPositiveQuality {
		filtered := survivors[:0]
		for _, e := range survivors {
			if e.descriptor.Quality > 0 {
				filtered = append(filtered, e)
			}
		}
		survivors = filtered
	}

	scores := make(map[string]int, len(survivors))
	for _, e := range survivors {
		scores[e.descriptor.Name] = supportScore(required, e.descriptor)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		si, sj := scores[survivors[i].descriptor.Name], scores[survivors[j].descriptor.Name]
		if si != sj {
			return si > sj
		}
		return survivors[i].descriptor.Quality > survivors[j].descriptor.Quality
	})

	out := make([]Candidate, 0, len(survivors))
	for _, e := range survivors {
		out = append(out, Candidate{
			Descriptor:          e.descriptor,
			Handler:             e.handler,
			UnsupportedFeatures: required &^ e.descriptor.Capabilities,
		})
	}
	return out
}

// RequiredFeatures derives required_features from a job's scrape
// options (spec §4.F: "formats contains screenshot ⇒ screenshot;
// actions non-empty ⇒ actions; ...").
func RequiredFeatures(opts model.ScrapeOptions) model.Feature {
	var f model.Feature
	for _, format := range opts.Formats {
		switch format {
		case "screenshot":
			f |= model.FeatureScreenshot
		case "screenshot@fullPage":
			f |= model.FeatureScreenshot | model.FeatureFullPageScreenshot
		}
	}
	if opts.FullPageScreenshot {
		f |= model.FeatureScreenshot | model.FeatureFullPageScreenshot
	}
	if len(opts.Actions) > 0 {
		f |= model.FeatureActions
	}
	if opts.WaitForMs > 0 {
		f |= model.FeatureWaitFor
	}
	if opts.ProxyTier == model.ProxyStealth {
		f |= model.FeatureProxyStealth
	}
	if opts.BlockAds {
		f |= model.FeatureBlockAds
	}
	if opts.Mobile {
		f |= model.FeatureMobile
	}
	if opts.SkipTLSVerify {
		f |= model.FeatureSkipTLSVerify
	}
	return f
}
