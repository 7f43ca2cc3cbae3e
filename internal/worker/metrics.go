package worker

import (
	"sync/atomic"
	"time"
)

// counters backs the orchestrator's read-only metrics snapshot (spec.md
// §4.7) with lock-free atomics, since the collection and submission loops
// update it while the health loop reads it concurrently.
type counters struct {
	postsCollected int64
	postsAnalyzed  int64
	postsFiltered  int64
	txSubmitted    int64
	txConfirmed    int64
	txFailed       int64
	errors         int64

	startedAt      int64 // unix nanos, set once on Start
	lastSubmission int64 // unix nanos, 0 if never
}

// Metrics is a point-in-time, read-only snapshot of the orchestrator's
// counters (spec.md §4.7).
type Metrics struct {
	PostsCollected int64
	PostsAnalyzed  int64
	PostsFiltered  int64
	TxSubmitted    int64
	TxConfirmed    int64
	TxFailed       int64
	Errors         int64
	UptimeSeconds  float64
	LastSubmission time.Time
}

func (c *counters) Snapshot() Metrics {
	m := Metrics{
		PostsCollected: atomic.LoadInt64(&c.postsCollected),
		PostsAnalyzed:  atomic.LoadInt64(&c.postsAnalyzed),
		PostsFiltered:  atomic.LoadInt64(&c.postsFiltered),
		TxSubmitted:    atomic.LoadInt64(&c.txSubmitted),
		TxConfirmed:    atomic.LoadInt64(&c.txConfirmed),
		TxFailed:       atomic.LoadInt64(&c.txFailed),
		Errors:         atomic.LoadInt64(&c.errors),
	}
	if started := atomic.LoadInt64(&c.startedAt); started != 0 {
		m.UptimeSeconds = time.Since(time.Unix(0, started)).Seconds()
	}
	if last := atomic.LoadInt64(&c.lastSubmission); last != 0 {
		m.LastSubmission = time.Unix(0, last)
	}
	return m
}

func (c *counters) markStarted(at time.Time)      { atomic.StoreInt64(&c.startedAt, at.UnixNano()) }
func (c *counters) markSubmission(at time.Time)    { atomic.StoreInt64(&c.lastSubmission, at.UnixNano()) }
func (c *counters) addPostsCollected(n int64)      { atomic.AddInt64(&c.postsCollected, n) }
func (c *counters) addPostsAnalyzed(n int64)       { atomic.AddInt64(&c.postsAnalyzed, n) }
func (c *counters) addPostsFiltered(n int64)       { atomic.AddInt64(&c.postsFiltered, n) }
func (c *counters) incTxSubmitted()                { atomic.AddInt64(&c.txSubmitted, 1) }
func (c *counters) incTxConfirmed()                { atomic.AddInt64(&c.txConfirmed, 1) }
func (c *counters) incTxFailed()                   { atomic.AddInt64(&c.txFailed, 1) }
func (c *counters) incErrors()                     { atomic.AddInt64(&c.errors, 1) }
