package testsupport

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

const metricNamespace = "daffodil_"

// GetMetricValue sums every series of metricName whose labels contain labelFilter.
// Counters and gauges contribute their value, histograms their sample count.
// The "daffodil_" namespace prefix may be omitted.
func GetMetricValue(t *testing.T, metricName string, labelFilter map[string]string) float64 {
	t.Helper()

	if !strings.HasPrefix(metricName, metricNamespace) {
		metricName = metricNamespace + metricName
	}

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	var total float64
	for _, mf := range mfs {
		if mf.GetName() != metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labelFilter) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabels(m *io_prometheus_client.Metric, filter map[string]string) bool {
	for k, v := range filter {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == k {
				found = pair.GetValue() == v
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AssertMetricDelta runs fn and asserts the metric moved by exactly expectedDelta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()
	after := GetMetricValue(t, metricName, labels)

	assert.Equal(t, expectedDelta, after-before, "metric %s%v delta mismatch", metricName, labels)
}

// AssertHistogramRecorded asserts that a histogram has at least one sample.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, metricName, labels), 0.0,
		"histogram %s%v should have recorded samples", metricName, labels)
}
