package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderRegistersMetrics(t *testing.T) {
	r, registry := NewRecorder()
	r.JobsSucceeded.Inc()
	r.JobsFailed.Inc()
	r.JobsSkipped.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(r.JobsSucceeded))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.JobsFailed))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.JobsSkipped))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestObservePublishRecordsLatencyOnError(t *testing.T) {
	r, _ := NewRecorder()
	err := r.ObservePublish(func() error { return errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(r.PublishLatency))
}
