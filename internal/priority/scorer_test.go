package priority

import "testing"

func TestPenaltyZeroBelowThreshold(t *testing.T) {
	s := NewScorer(nil)
	if got := s.Penalty("free", 10); got != 0 {
		t.Fatalf("expected zero penalty below threshold, got %v", got)
	}
}

func TestPenaltyLinearRampAboveThreshold(t *testing.T) {
	s := NewScorer(nil)
	// free: T=25, k=0.5; inflight=30 -> ceil((30-25)*0.5) = ceil(2.5) = 3
	if got := s.Penalty("free", 30); got != 3 {
		t.Fatalf("expected penalty 3, got %v", got)
	}
}

func TestPenaltyEnterpriseNeverRamps(t *testing.T) {
	s := NewScorer(nil)
	if got := s.Penalty("enterprise", 1_000_000); got != 0 {
		t.Fatalf("expected enterprise penalty to stay zero, got %v", got)
	}
}

func TestScoreAddsBasePriorityAndPenalty(t *testing.T) {
	s := NewScorer(nil)
	got := s.Score("hobby", 60, BaseCrawlKickoff)
	// hobby: T=50, k=0.3; inflight=60 -> ceil((60-50)*0.3) = ceil(3) = 3
	want := BaseCrawlKickoff + 3
	if got != want {
		t.Fatalf("expected score %v, got %v", want, got)
	}
}

func TestUnknownPlanFallsBackToNoPenalty(t *testing.T) {
	s := NewScorer(nil)
	if got := s.Penalty("nonexistent-plan", 999); got != 0 {
		t.Fatalf("expected unknown plan to carry no penalty, got %v", got)
	}
}
