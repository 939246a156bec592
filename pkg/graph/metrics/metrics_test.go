package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUpdateSystemMetrics(t *testing.T) {
	UpdateSystemMetrics()
	assert.Greater(t, testutil.ToFloat64(SystemGoroutines), 0.0)
	assert.Greater(t, testutil.ToFloat64(SystemMemoryUsage), 0.0)
}

func TestSkippedPairsCounts(t *testing.T) {
	before := testutil.ToFloat64(SkippedPairs)
	SkippedPairs.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SkippedPairs))
}
