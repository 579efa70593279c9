package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsUnderKelolaNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveDuration("trial-reconcile", 250*time.Millisecond)
	m.IncSuccess("trial-reconcile")
	m.IncFailure("trial-reconcile")
	m.IncSuccess("")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	assert.Contains(t, names, "kelola_cron_job_duration_seconds")
	assert.Contains(t, names, "kelola_cron_job_runs_total")
	assert.Contains(t, names, "kelola_cron_job_last_success_timestamp_seconds")

	success := testutil.ToFloat64(m.runs.WithLabelValues("trial-reconcile", "success"))
	assert.Equal(t, float64(1), success)
	failure := testutil.ToFloat64(m.runs.WithLabelValues("trial-reconcile", "failure"))
	assert.Equal(t, float64(1), failure)

	// Empty job names fall back to a stable label.
	unknown := testutil.ToFloat64(m.runs.WithLabelValues("unknown", "success"))
	assert.Equal(t, float64(1), unknown)
}

func TestCronJobMetricsNilRegistererIsNoOp(t *testing.T) {
	m := NewCronJobMetrics(nil)

	assert.NotPanics(t, func() {
		m.ObserveDuration("trial-reconcile", time.Second)
		m.IncSuccess("trial-reconcile")
		m.IncFailure("trial-reconcile")
	})

	var nilMetrics *CronJobMetrics
	assert.NotPanics(t, func() { nilMetrics.IncSuccess("trial-reconcile") })
}
