// Package plan implements the Plan Policy table (spec §6): the mapping
// from a tenant's billing plan to its concurrency ceiling.
package plan

import "raito/internal/config"

// defaultCeilings mirrors spec §6's table and is used when the config
// file omits a row (or omits the section entirely in a test fixture).
var defaultCeilings = map[string]int{
	"free":       2,
	"hobby":      5,
	"standard":   10,
	"growth":     50,
	"scale":      100,
	"enterprise": 0, // configurable: must come from config
	"system":     0, // configurable: must come from config
}

// Policy resolves a plan name to its concurrency ceiling C(plan), as
// referenced throughout Concurrency Admission (spec §4.B).
type Policy struct {
	cfg *config.Config
}

func NewPolicy(cfg *config.Config) *Policy {
	return &Policy{cfg: cfg}
}

// Ceiling returns C(plan). Config rows always win; the built-in table
// is only a fallback for plans the operator hasn't configured, and
// "enterprise"/"system" have no usable fallback since spec §6 marks
// them "configurable" with no default value.
func (p *Policy) Ceiling(planName string) int {
	if p.cfg != nil {
		if c, ok := p.cfg.CeilingFor(planName); ok {
			return c
		}
	}
	if c, ok := defaultCeilings[planName]; ok && c > 0 {
		return c
	}
	return 1
}
