// Package core defines the shared types and interfaces for the portfolio
// exporter.
package core

import (
	"context"
)

// IBlobStore is the persistent key/value blob store used to carry the
// reconciled state across sessions. The second return value reports whether
// the key existed.
type IBlobStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// IDetailTrigger asks the host page to start emitting event-detail
// responses. How that happens (UI automation, a connected interceptor
// client) is the implementation's business; the reconciler only knows that
// calling it may eventually cause more ingestion events to arrive.
type IDetailTrigger interface {
	TriggerDetails(ctx context.Context) error
}

// IArtifactSink makes an export artifact available to the user.
type IArtifactSink interface {
	Deliver(content string, suggestedName string, mimeType string) error
}

// IIngestor consumes captured network payloads. The capture server holds
// this interface rather than the concrete reconciler.
type IIngestor interface {
	// Ingest processes one observed network response. Payloads from other
	// origins, failed responses and malformed bodies are swallowed.
	Ingest(url string, httpStatus int, body []byte)
	// ResetListing marks the next offset-zero position-list page as the
	// start of a fresh listing.
	ResetListing()
}

// IStatusObserver receives capture-progress notifications.
type IStatusObserver func(update StatusUpdate)

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
