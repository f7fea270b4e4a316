// Package metrics provides interfaces and implementations for collecting
// WordQuizzle server metrics. This package defines the Collector interface
// for recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording WordQuizzle server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Authentication metrics
	LoginAttempt(success bool)

	// Command metrics
	CommandProcessed(command string)

	// Match metrics
	MatchStarted()
	MatchFinished(outcome string) // "completed", "timeout", "unavailable"

	// Translator metrics
	TranslatorRequest(success bool, durationSeconds float64)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
