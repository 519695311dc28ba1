package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.QueueSize(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(pendingActions))
	r.QueueSize(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(pendingActions))

	before := testutil.ToFloat64(syncedTotal.WithLabelValues("member.update"))
	r.ActionSynced("member.update")
	r.ActionSynced("member.update")
	assert.Equal(t, before+2, testutil.ToFloat64(syncedTotal.WithLabelValues("member.update")))

	failedBefore := testutil.ToFloat64(failedTotal.WithLabelValues("donation.create"))
	r.ActionFailed("donation.create")
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failedTotal.WithLabelValues("donation.create")))

	passesBefore := testutil.ToFloat64(syncPasses.WithLabelValues("partial"))
	r.PassFinished("partial", 150*time.Millisecond)
	assert.Equal(t, passesBefore+1, testutil.ToFloat64(syncPasses.WithLabelValues("partial")))
	assert.Equal(t, 1, testutil.CollectAndCount(syncDuration))
}
