package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue returns the value of the first series of metricName whose
// labels include every pair in labels. Counters and gauges report their
// value, histograms their sample count. Missing series read as 0.
func GetMetricValue(t *testing.T, metricName string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	for _, family := range families {
		if family.GetName() != metricName {
			continue
		}
		for _, m := range family.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}

	found := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(want)
}

// AssertMetricDelta asserts that fn moves the metric by exactly expectedDelta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()
	after := GetMetricValue(t, metricName, labels)

	assert.Equal(t, expectedDelta, after-before, "metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync is AssertMetricDelta for effects that land in the
// background (Pub/Sub listeners, workers).
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels) == before+expectedDelta
	}, 2*time.Second, 50*time.Millisecond, "metric %s%v failed to reach delta +%.0f", metricName, labels, expectedDelta)
}

// AssertHistogramRecorded asserts the histogram has at least one sample.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, metricName, labels), 0.0, "histogram %s%v has no samples", metricName, labels)
}
