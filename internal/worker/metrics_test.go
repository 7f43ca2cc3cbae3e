package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters_SnapshotReflectsAccumulatedValues(t *testing.T) {
	c := &counters{}
	c.addPostsCollected(5)
	c.addPostsAnalyzed(3)
	c.addPostsFiltered(1)
	c.incTxSubmitted()
	c.incTxSubmitted()
	c.incTxConfirmed()
	c.incTxFailed()
	c.incErrors()

	snap := c.Snapshot()
	assert.Equal(t, int64(5), snap.PostsCollected)
	assert.Equal(t, int64(3), snap.PostsAnalyzed)
	assert.Equal(t, int64(1), snap.PostsFiltered)
	assert.Equal(t, int64(2), snap.TxSubmitted)
	assert.Equal(t, int64(1), snap.TxConfirmed)
	assert.Equal(t, int64(1), snap.TxFailed)
	assert.Equal(t, int64(1), snap.Errors)
	assert.True(t, snap.LastSubmission.IsZero())
	assert.Equal(t, 0.0, snap.UptimeSeconds)
}

func TestCounters_SnapshotComputesUptimeAndLastSubmission(t *testing.T) {
	c := &counters{}
	start := time.Now().Add(-5 * time.Second)
	c.markStarted(start)
	submittedAt := time.Now()
	c.markSubmission(submittedAt)

	snap := c.Snapshot()
	assert.Greater(t, snap.UptimeSeconds, 0.0)
	assert.WithinDuration(t, submittedAt, snap.LastSubmission, time.Millisecond)
}
