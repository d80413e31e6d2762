// Package priority implements the Job Priority Scorer (spec §4.C):
// lower score means higher priority, and a tenant's inflight load adds
// a plan-specific penalty on top of a job's base priority.
package priority

import (
	"math"

	"raito/internal/config"
)

// Base priority conventions (spec §4.C).
const (
	BaseSitemap       = 20.0
	BaseDiscoveredLink = 20.0
	BaseCrawlKickoff  = 15.0
	BaseSingleScrape  = 10.0
)

type threshold struct {
	T float64
	K float64
}

// defaultThresholds mirrors spec §4.C's table; used when config doesn't
// override a plan's row.
var defaultThresholds = map[string]threshold{
	"free":       {T: 25, K: 0.5},
	"hobby":      {T: 50, K: 0.3},
	"standard":   {T: 200, K: 0.4},
	"growth":     {T: 400, K: 0.1},
	"scale":      {T: 400, K: 0.1},
	"enterprise": {T: math.Inf(1), K: 0},
	"system":     {T: math.Inf(1), K: 0},
}

// Scorer computes dequeue priority scores.
type Scorer struct {
	cfg *config.Config
}

func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) thresholdFor(planName string) threshold {
	if s.cfg != nil {
		if row, ok := s.cfg.ScorerFor(planName); ok {
			return threshold{T: float64(row.Threshold), K: row.Slope}
		}
	}
	if t, ok := defaultThresholds[planName]; ok {
		return t
	}
	return threshold{T: math.Inf(1), K: 0}
}

// Penalty computes penalty(plan, inflight_count) = max(0, ceil((inflight_count - T) * k)).
func (s *Scorer) Penalty(planName string, inflightCount int) float64 {
	t := s.thresholdFor(planName)
	if math.IsInf(t.T, 1) || t.K == 0 {
		return 0
	}
	raw := (float64(inflightCount) - t.T) * t.K
	if raw <= 0 {
		return 0
	}
	return math.Ceil(raw)
}

// Score computes score(plan, inflight_count, base_priority).
func (s *Scorer) Score(planName string, inflightCount int, basePriority float64) float64 {
	return basePriority + s.Penalty(planName, inflightCount)
}
