package services

import (
	"github.com/pkg/errors"
)

// Workflow error kinds. Handlers match these with errors.Is and translate
// them to HTTP statuses; services wrap them with context using pkg/errors so
// the kind survives the chain.
var (
	// ErrValidation: missing or malformed required input. Raised before any
	// write happens.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAmount: the supplied settlement amount is below the
	// configured minimum or not a usable number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnauthorized: the actor is not the owner/role the action expects.
	ErrUnauthorized = errors.New("actor not authorized for this action")

	// ErrInvalidState: a status precondition failed. Expected under
	// concurrency; callers should re-read and reconcile, not crash.
	ErrInvalidState = errors.New("document is not in the expected state")

	// ErrAlreadyResolved: the completion or material was already approved or
	// rejected. A retry hitting this is a no-op, not a failure.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrInvalidTransition: the requested job status edge is not in the
	// transition table for the acting role.
	ErrInvalidTransition = errors.New("job status transition not allowed")

	// ErrNotFound: the referenced job, completion or material does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPaymentFailed: the gateway declined or timed out. Retryable; no
	// status was advanced.
	ErrPaymentFailed = errors.New("payment settlement failed")

	// ErrUpstream: blob upload or store write failed. Retryable, and no
	// partial state is left behind.
	ErrUpstream = errors.New("upstream dependency failed")
)
