// Package telemetry wraps OpenTelemetry SDK initialization, providing a
// single TracerProvider setup for the gateway. Request/latency counters
// live in internal/metrics' Prometheus collector instead, so this
// package only ever exports traces. When telemetry is disabled, the
// global provider stays noop and no exporter connects anywhere.
package telemetry
