// Package telemetry wires the ambient observability stack shared by
// every component: structured logging via go.uber.org/zap, Prometheus
// metrics, and OpenTelemetry tracing — mirroring the teacher's heavy
// instrumentation of its gateway and datastorage services.
package telemetry

import "go.uber.org/zap"

// NewLogger builds a zap logger. production selects the JSON encoder
// config used by the teacher's production deployments; development
// selects the console encoder used in its test suites.
func NewLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
