// Package prometheus builds the go-kit metrics used by service middleware.
package prometheus

import (
	"errors"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MakeMetrics returns a request counter and a latency summary, both
// labelled by method. Repeated calls share the registered collectors.
func MakeMetrics(namespace, subsystem string) (*kitprometheus.Counter, *kitprometheus.Summary) {
	counter := register(stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"}))
	latency := register(stdprometheus.NewSummaryVec(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, []string{"method"}))

	return kitprometheus.NewCounter(counter), kitprometheus.NewSummary(latency)
}

// MakeGauge returns a gauge labelled by the given names.
func MakeGauge(namespace, subsystem, name, help string, labels ...string) *kitprometheus.Gauge {
	gauge := register(stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels))

	return kitprometheus.NewGauge(gauge)
}

func register[C stdprometheus.Collector](c C) C {
	err := stdprometheus.Register(c)
	if err == nil {
		return c
	}

	var are stdprometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}
