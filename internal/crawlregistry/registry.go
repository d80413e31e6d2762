// Package crawlregistry implements the Crawl Registry (spec §4.D):
// crawl descriptors, visited-URL sets, enrolled job IDs, done counters,
// and kickoff/finish flags, all owned exclusively by this component per
// spec §3 "Ownership."
package crawlregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"raito/internal/crawlcore"
	"raito/internal/model"
)

// stateStore is the subset of the State Store Adapter this component
// needs.
type stateStore interface {
	HSet(ctx context.Context, hashName, field, value string) error
	HGet(ctx context.Context, hashName, field string) (string, bool, error)
	HGetAll(ctx context.Context, hashName string) (map[string]string, error)
	HIncrBy(ctx context.Context, hashName, field string, by int64) (int64, error)
	SAdd(ctx context.Context, setName, member string) (bool, error)
	RPush(ctx context.Context, listName, value string) error
	LLen(ctx context.Context, listName string) (int64, error)
	SetNX(ctx context.Context, name, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, name string, ttl time.Duration) error
}

// visitedTTL is how long the visited/enrolled keys outlive a
// finalized crawl (spec §4.D "visited/enrolled sets TTL at 24 h after
// finalization").
const visitedTTL = 24 * time.Hour

// finalizeTTL bounds how long the NX finish flag itself is retained;
// it only needs to outlive the window in which a second try_finalize
// call could race the first. It is set to the same 24 h as visitedTTL.
const finalizeTTL = 24 * time.Hour

type Registry struct {
	store stateStore
}

func New(store stateStore) *Registry {
	return &Registry{store: store}
}

func crawlHashKey(crawlID string) string     { return fmt.Sprintf("crawl:%s", crawlID) }
func visitedKey(crawlID string) string       { return fmt.Sprintf("visited:%s", crawlID) }
func visitedUniqueKey(crawlID string) string { return fmt.Sprintf("visited_unique:%s", crawlID) }
func enrolledKey(crawlID string) string      { return fmt.Sprintf("enrolled:%s", crawlID) }
func finishedKey(crawlID string) string      { return fmt.Sprintf("finished:%s", crawlID) }

// SaveCrawl persists crawl under crawl:{id}, serialized as JSON in the
// "record" field so crawler_options/scrape_options/internal_options
// round-trip without a bespoke hash-of-hashes encoding.
func (r *Registry) SaveCrawl(ctx context.Context, crawl model.Crawl) error {
	payload, err := json.Marshal(crawl)
	if err != nil {
		return err
	}
	return r.store.HSet(ctx, crawlHashKey(crawl.ID), "record", string(payload))
}

// GetCrawl retrieves a previously saved crawl record.
func (r *Registry) GetCrawl(ctx context.Context, crawlID string) (model.Crawl, bool, error) {
	raw, found, err := r.store.HGet(ctx, crawlHashKey(crawlID), "record")
	if err != nil || !found {
		return model.Crawl{}, found, err
	}
	var crawl model.Crawl
	if err := json.Unmarshal([]byte(raw), &crawl); err != nil {
		return model.Crawl{}, false, err
	}
	return crawl, true, nil
}

// LockURL computes url's permutation bundle and atomically adds every
// member to the crawl's visited set; it returns true iff every
// permutation was newly inserted (spec §4.D "lock_url"). The canonical
// URL is additionally recorded in visited_unique regardless of outcome,
// since visited_unique tracks distinct pages seen, not lock ownership.
func (r *Registry) LockURL(ctx context.Context, crawlID, canonicalURL string) (bool, error) {
	perms, err := crawlcore.Permutations(canonicalURL)
	if err != nil {
		return false, err
	}

	newlyInserted := 0
	for _, perm := range perms {
		added, err := r.store.SAdd(ctx, visitedKey(crawlID), perm)
		if err != nil {
			return false, err
		}
		if added {
			newlyInserted++
		}
	}

	if _, err := r.store.SAdd(ctx, visitedUniqueKey(crawlID), canonicalURL); err != nil {
		return false, err
	}

	return newlyInserted == len(perms), nil
}

// LockURLsIndividually is the batch variant of LockURL: it returns the
// subset of jobID whose URL was successfully locked, in input order.
func (r *Registry) LockURLsIndividually(ctx context.Context, crawlID string, candidates []struct {
	JobID string
	URL   string
}) ([]string, error) {
	var locked []string
	for _, c := range candidates {
		ok, err := r.LockURL(ctx, crawlID, c.URL)
		if err != nil {
			return locked, err
		}
		if ok {
			locked = append(locked, c.JobID)
		}
	}
	return locked, nil
}

// AddCrawlJob enrolls jobID into the crawl's job list.
func (r *Registry) AddCrawlJob(ctx context.Context, crawlID, jobID string) error {
	return r.store.RPush(ctx, enrolledKey(crawlID), jobID)
}

// AddCrawlJobs enrolls a batch of job IDs.
func (r *Registry) AddCrawlJobs(ctx context.Context, crawlID string, jobIDs []string) error {
	for _, id := range jobIDs {
		if err := r.AddCrawlJob(ctx, crawlID, id); err != nil {
			return err
		}
	}
	return nil
}

// EnrolledCount returns the number of job IDs enrolled so far.
func (r *Registry) EnrolledCount(ctx context.Context, crawlID string) (int64, error) {
	return r.store.LLen(ctx, enrolledKey(crawlID))
}

// AddDone increments the done counter (regardless of success/failure,
// per spec §4.D "increments done counter") and returns the new total.
// A failed job additionally increments a separate counter, so crawl
// status can later derive "failed" from "every child failed" (spec
// §7 aggregation rule).
func (r *Registry) AddDone(ctx context.Context, crawlID, jobID string, success bool) (int64, error) {
	if !success {
		if _, err := r.store.HIncrBy(ctx, crawlHashKey(crawlID), "failed", 1); err != nil {
			return 0, err
		}
	}
	return r.store.HIncrBy(ctx, crawlHashKey(crawlID), "done", 1)
}

// doneCount reads back the current done counter.
func (r *Registry) doneCount(ctx context.Context, crawlID string) (int64, error) {
	fields, err := r.store.HGetAll(ctx, crawlHashKey(crawlID))
	if err != nil {
		return 0, err
	}
	n, _ := strconv.ParseInt(fields["done"], 10, 64)
	return n, nil
}

// DoneCount is doneCount's exported counterpart, for status reporting.
func (r *Registry) DoneCount(ctx context.Context, crawlID string) (int64, error) {
	return r.doneCount(ctx, crawlID)
}

// FailedCount returns how many enrolled jobs reached a terminal
// failure state.
func (r *Registry) FailedCount(ctx context.Context, crawlID string) (int64, error) {
	fields, err := r.store.HGetAll(ctx, crawlHashKey(crawlID))
	if err != nil {
		return 0, err
	}
	n, _ := strconv.ParseInt(fields["failed"], 10, 64)
	return n, nil
}

// FinishKickoff marks the crawl's initial sitemap/seed enumeration as
// complete; finalization may not run before this is set.
func (r *Registry) FinishKickoff(ctx context.Context, crawlID string) error {
	return r.store.HSet(ctx, crawlHashKey(crawlID), "kickoff_finished", "1")
}

// IsKickoffFinished reports whether FinishKickoff has been called.
func (r *Registry) IsKickoffFinished(ctx context.Context, crawlID string) (bool, error) {
	val, found, err := r.store.HGet(ctx, crawlHashKey(crawlID), "kickoff_finished")
	if err != nil {
		return false, err
	}
	return found && val == "1", nil
}

// TryFinalize atomically checks (kickoff_finished ∧ done ≥ enrolled ∧
// not yet finalized) and, if true, marks the crawl finalized via a
// single NX-guarded key — exactly one caller ever observes true (spec
// §4.D, §5 "crawl finalization fires exactly once").
func (r *Registry) TryFinalize(ctx context.Context, crawlID string) (bool, error) {
	finished, err := r.IsKickoffFinished(ctx, crawlID)
	if err != nil || !finished {
		return false, err
	}

	done, err := r.doneCount(ctx, crawlID)
	if err != nil {
		return false, err
	}
	enrolled, err := r.EnrolledCount(ctx, crawlID)
	if err != nil {
		return false, err
	}
	if done < enrolled {
		return false, nil
	}

	won, err := r.store.SetNX(ctx, finishedKey(crawlID), "1", finalizeTTL)
	if err != nil {
		return false, err
	}
	if won {
		_ = r.store.Expire(ctx, visitedKey(crawlID), visitedTTL)
		_ = r.store.Expire(ctx, visitedUniqueKey(crawlID), visitedTTL)
		_ = r.store.Expire(ctx, enrolledKey(crawlID), visitedTTL)
	}
	return won, nil
}

// Cancel flips the crawl's cancellation flag (spec §5 "Cancellation").
// Workers check it before each scrape, before each discovered-link
// enqueue, and once at the start of a kickoff; the kickoff does not
// re-check it between its own child enqueues.
func (r *Registry) Cancel(ctx context.Context, crawlID string) error {
	return r.store.HSet(ctx, crawlHashKey(crawlID), "cancelled", "1")
}

// IsCancelled reports the crawl's cancellation flag.
func (r *Registry) IsCancelled(ctx context.Context, crawlID string) (bool, error) {
	val, found, err := r.store.HGet(ctx, crawlHashKey(crawlID), "cancelled")
	if err != nil {
		return false, err
	}
	return found && val == "1", nil
}

