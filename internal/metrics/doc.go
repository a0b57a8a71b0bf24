// Package metrics provides internal Prometheus metrics collection for the
// orchestration engine and its facades.
// This package is internal and should not be imported by external projects.
package metrics
