// Package internaldefs holds the shared metric name table used by the
// Prometheus and OpenTelemetry exporters. It exists so the two exporters
// always agree on names without the root package knowing about either.
package internaldefs
