package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registry adapters and
// other infrastructure layers return these (optionally wrapped) so services
// can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: compare-and-swap lost against a concurrent writer
// - ErrExpired: confirmation token past its expiry window
// - ErrAlreadyUsed: confirmation token already redeemed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrRateLimited: registry call budget exhausted, caller must fall back
// - ErrUnavailable: registry or store temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("unavailable")
)
