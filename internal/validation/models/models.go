// Package models defines the validation domain types: identifier kinds,
// validation results and cache entries.
package models

import (
	"fmt"
	"time"

	id "veriflow/pkg/domain"
)

// IdentifierKind distinguishes the two registry identifier variants.
type IdentifierKind string

const (
	KindCompany IdentifierKind = "company"
	KindTax     IdentifierKind = "tax"
)

// ParseIdentifierKind validates a kind taken from a URL segment.
func ParseIdentifierKind(raw string) (IdentifierKind, error) {
	switch IdentifierKind(raw) {
	case KindCompany, KindTax:
		return IdentifierKind(raw), nil
	default:
		return "", fmt.Errorf("unknown identifier kind %q", raw)
	}
}

// Normalize validates and normalizes a raw identifier for this kind.
// Format errors are fully local; no registry call may follow a failure here.
func (k IdentifierKind) Normalize(raw string) (string, error) {
	switch k {
	case KindCompany:
		n, err := id.ParseCompanyNumber(raw)
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case KindTax:
		n, err := id.ParseTaxNumber(raw)
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", fmt.Errorf("unknown identifier kind %q", k)
	}
}

// Status is the registration status attached to a validation result.
// UNKNOWN means the registry could not answer, never "confirmed invalid".
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusUnknown  Status = "UNKNOWN"
)

// Source records where a validation result came from.
type Source string

const (
	// SourceRegistry marks an authoritative answer fetched this request.
	SourceRegistry Source = "REGISTRY"
	// SourceCache marks an authoritative answer served from a live cache
	// entry.
	SourceCache Source = "CACHE"
	// SourceFallback marks a degraded result produced because the registry
	// was unreachable. Always carries an error and StatusUnknown.
	SourceFallback Source = "FALLBACK"
	// SourceLocal marks a result produced without any registry or cache
	// interaction, e.g. a format rejection inside a bulk lookup.
	SourceLocal Source = "LOCAL"
)

// ValidationResult is the outcome of one identifier lookup. Never mutated
// after creation; a newer lookup supersedes it once its cache entry expires.
//
// Invariant: Source == SourceFallback implies Error != "" and
// Status == StatusUnknown. Callers must treat fallback results as "unknown",
// never as "confirmed invalid".
type ValidationResult struct {
	Kind        IdentifierKind `json:"kind"`
	Identifier  string         `json:"identifier"`
	IsValid     bool           `json:"is_valid"`
	Name        string         `json:"name,omitempty"`
	Address     string         `json:"address,omitempty"`
	Status      Status         `json:"status"`
	Source      Source         `json:"source"`
	ValidatedAt time.Time      `json:"validated_at"`
	Error       string         `json:"error,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Authoritative reports whether the result is a real registry answer
// (directly or via cache) rather than a degraded or local one.
func (r ValidationResult) Authoritative() bool {
	return r.Source == SourceRegistry || r.Source == SourceCache
}

// NewFallbackResult builds the degraded result returned when the registry
// cannot be reached. It satisfies the fallback invariant by construction.
func NewFallbackResult(kind IdentifierKind, identifier string, now time.Time, cause string) ValidationResult {
	return ValidationResult{
		Kind:        kind,
		Identifier:  identifier,
		IsValid:     false,
		Status:      StatusUnknown,
		Source:      SourceFallback,
		ValidatedAt: now,
		Error:       cause,
		Warnings:    []string{"registry unreachable, result not cached"},
	}
}

// CacheEntry wraps a stored result with its insertion time and TTL. Expiry is
// always computed from these two fields, never stored as a derived boolean,
// so a skewed clock cannot freeze a stale entry.
type CacheEntry struct {
	Result     ValidationResult `json:"result"`
	InsertedAt time.Time        `json:"inserted_at"`
	TTL        time.Duration    `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.InsertedAt.Add(e.TTL))
}
