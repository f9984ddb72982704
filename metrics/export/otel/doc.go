// Package otel bridges engine metrics into an OpenTelemetry meter via
// observable instruments; collection pulls a fresh snapshot on every read.
package otel
