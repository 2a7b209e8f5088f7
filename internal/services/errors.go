package services

import "errors"

// Error taxonomy for the matching and ingestion engines. Transient
// collaborator failures are retried locally with bounded attempts; the
// errors below are what survives those retries and reaches a caller.
var (
	// ErrMalformedResponse means the LLM output failed schema validation
	// even after the stricter reprompt. Fatal for the request.
	ErrMalformedResponse = errors.New("extraction: response failed schema validation")

	// ErrProviderUnavailable means the LLM collaborator kept failing
	// through bounded retries with backoff.
	ErrProviderUnavailable = errors.New("extraction: provider unavailable")

	// ErrExtractionTimeout means the extraction call exceeded its budget.
	ErrExtractionTimeout = errors.New("extraction: timed out")

	// ErrRecallUnavailable means both recall paths are down. A single dead
	// path is never an error, only reduced evidence quality.
	ErrRecallUnavailable = errors.New("recall: no recall path available")

	// ErrMergeConflict means the optimistic version check kept losing
	// races through the bounded retry budget.
	ErrMergeConflict = errors.New("merge: concurrent update conflict")

	// ErrValidation means the input itself is malformed. Never retried.
	ErrValidation = errors.New("validation: malformed input")
)
