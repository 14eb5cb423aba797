// Package common defines shared constants and sentinel errors used across
// the vault core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Ledger errors.
	ErrChainConflict  = errors.New("chain head conflict")
	ErrChainIntegrity = errors.New("chain integrity violation")

	// Daily root errors.
	ErrRootBackfillDiscrepancy = errors.New("root backfill discrepancy")
	ErrRootChainBroken         = errors.New("root chain broken")

	// Signing errors.
	ErrVerificationUnavailable = errors.New("verification unavailable: no public key configured")

	// Disclosure errors.
	ErrAssetNotFound   = errors.New("asset not found")
	ErrAlreadyRevealed = errors.New("already revealed")
	ErrWatermarkApply  = errors.New("watermark apply failed")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
