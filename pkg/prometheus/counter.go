package prometheus

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// CounterVec creates and registers a counter vector, nil when no registerer is given.
func CounterVec(prometheusRegisterer prometheus.Registerer, namespace, subsystem, name string, labels ...string) *prometheus.CounterVec {
	if isNil(prometheusRegisterer) {
		return nil
	}

	metric := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
	}, labels)

	prometheusRegisterer.MustRegister(metric)

	return metric
}

// Increase is a nil-safe increment of the given label values.
func Increase(counter *prometheus.CounterVec, labels ...string) {
	if counter == nil {
		return
	}

	counter.WithLabelValues(labels...).Inc()
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	reflected := reflect.ValueOf(value)

	return reflected.Kind() == reflect.Pointer && reflected.IsNil()
}
