// Package common defines shared constants and sentinel errors used across
// debatekeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Vault validation errors (bad input, no state change).
	ErrValidation     = errors.New("validation error")
	ErrDuplicateAlias = errors.New("duplicate alias")

	// Vault resolution errors, surfaced to the user as guidance.
	ErrNoActiveKey    = errors.New("no active key")
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrInvalidToken is returned by the cipher when a ciphertext token is
	// malformed or was produced under a different master key. Distinct from
	// ErrNotFound so a misconfigured master secret is never mistaken for a
	// missing record.
	ErrInvalidToken = errors.New("invalid token")

	// Provider registry errors.
	ErrUnknownProvider = errors.New("unknown provider")

	// Orchestrator errors.
	ErrNoEligibleParticipants = errors.New("no eligible participants")

	// ErrConflict is the stream-level signal that another consumer already
	// holds the inbound stream for this bot identity.
	ErrConflict = errors.New("consumer conflict")
)
