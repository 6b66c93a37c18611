package llm

import "errors"

// Sentinel errors for generation-provider failures. The answer pipeline
// maps each of these to a distinct degraded response.
var (
	// ErrUnreachable means the provider could not be contacted at all.
	ErrUnreachable = errors.New("generation provider unreachable")

	// ErrTimeout means the provider did not answer within the deadline,
	// typically while cold-loading a model.
	ErrTimeout = errors.New("generation provider timed out")

	// ErrEmptyResponse means the provider answered with no text; treated
	// as a failure, never as a valid completion.
	ErrEmptyResponse = errors.New("empty response from generation provider")
)
