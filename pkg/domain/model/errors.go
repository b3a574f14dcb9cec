package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrServiceUnavailable marks a transient failure of an external backend
	// (embedding, LLM, vector store). Retried under the shared policy.
	ErrServiceUnavailable = goerr.New("service unavailable")

	// ErrDimensionMismatch marks a vector whose length differs from the store's
	// configured dimension. Never retried.
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrValidation marks malformed input or model output that violates the schema.
	ErrValidation = goerr.New("validation error")

	// ErrRetrievalUnavailable is returned by retrieval when no context could be produced.
	ErrRetrievalUnavailable = goerr.New("retrieval unavailable")

	// ErrDispatchFailure marks a handler failure while executing an action.
	ErrDispatchFailure = goerr.New("dispatch failure")

	ErrNotFound      = goerr.New("not found")
	ErrAlreadyExists = goerr.New("already exists")
)
