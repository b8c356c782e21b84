package prometheus_test

import (
	"testing"

	"github.com/absmach/splitfed/pkg/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeMetricsTwice(t *testing.T) {
	c1, _ := prometheus.MakeMetrics("splitfed_test", "api")
	c2, _ := prometheus.MakeMetrics("splitfed_test", "api")

	c1.With("method", "status").Add(1)
	c2.With("method", "status").Add(2)

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.Nil(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != "splitfed_test_api_request_count" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, total)
}

func TestMakeGauge(t *testing.T) {
	g := prometheus.MakeGauge("splitfed_test", "session", "progress", "test gauge", "name")
	g.With("name", "score").Set(0.5)
	g = prometheus.MakeGauge("splitfed_test", "session", "progress", "test gauge", "name")
	g.With("name", "score").Add(0.25)

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.Nil(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "splitfed_test_session_progress" {
			found = true
			assert.Equal(t, 0.75, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}
