// Package common defines shared constants and sentinel errors used across
// the staging, relay and transport layers of StageKeeper. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("not found")

	// Staging errors.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrIOFailure       = errors.New("io failure")

	// Relay errors.
	ErrRelayFailed = errors.New("relay failed")
	ErrNoEndpoints = errors.New("no relay endpoints configured")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
