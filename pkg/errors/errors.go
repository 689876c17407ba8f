package apperrors

import "errors"

// Standardized exporter errors
var (
	ErrNoMatchingPositions = errors.New("no positions match the requested filters")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrUnknownExportKind   = errors.New("unknown export kind")
	ErrStoreUnavailable    = errors.New("blob store unavailable")
	ErrStateCorrupted      = errors.New("persisted state corrupted")
)
