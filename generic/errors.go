/*
errors.go - Centralized error types for the lot engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure is caller-facing and recoverable; nothing here is fatal.

ERROR CATEGORIES:
  1. Validation errors - Non-positive spend, empty payer, balance overflow
  2. Shortfall errors  - Not enough points for a payer or in total
  3. Store errors      - Invariant violations caught at persistence time

USAGE:
  The HTTP layer maps errors with errors.Is / Code():

    if errors.Is(err, generic.ErrInsufficientTotalPoints) {
        // 400 "Not enough points"
    }

SEE ALSO:
  - allocator.go: Produces shortfalls
  - rewards/ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP responses
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a spend request is zero or negative.
	ErrInvalidAmount = errors.New("points to spend must be positive")

	// ErrInsufficientTotalPoints is returned when all payers' lots together
	// cannot cover a spend.
	ErrInsufficientTotalPoints = errors.New("not enough points")

	// ErrInsufficientPointsForPayer is returned when a correction asks for
	// more than the payer's open lots hold.
	ErrInsufficientPointsForPayer = errors.New("insufficient points for this payer")

	// ErrInvalidPayer is returned when the payer identifier is empty.
	ErrInvalidPayer = errors.New("payer is required")

	// ErrBalanceOverflow is returned when an earn would push a payer's total
	// past the largest representable point count.
	ErrBalanceOverflow = errors.New("balance would exceed the maximum point count")

	// ErrNegativeRemaining is returned by a Store asked to overdraw a lot.
	ErrNegativeRemaining = errors.New("lot remaining would go negative")

	// ErrLotNotFound is returned by a Store asked to draw from an unknown lot.
	ErrLotNotFound = errors.New("lot not found")
)

// Machine-readable codes for the caller-facing errors.
const (
	CodeInvalidAmount              = "invalid_amount"
	CodeInsufficientTotalPoints    = "insufficient_total_points"
	CodeInsufficientPointsForPayer = "insufficient_points_for_payer"
	CodeInvalidPayer               = "invalid_payer"
	CodeBalanceOverflow            = "balance_overflow"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError describes a shortfall. An empty Payer means the
// shortfall is across all payers (a spend); otherwise it is scoped to Payer
// (a correction).
type InsufficientPointsError struct {
	Payer     PayerID
	Available Points
	Requested Points
}

func (e *InsufficientPointsError) Shortfall() Points { return e.Requested - e.Available }

func (e *InsufficientPointsError) Error() string {
	if e.Payer == "" {
		return fmt.Sprintf("not enough points: available %d, requested %d, short %d",
			e.Available, e.Requested, e.Shortfall())
	}
	return fmt.Sprintf("insufficient points for payer %s: available %d, requested %d, short %d",
		e.Payer, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientPointsError) Unwrap() error {
	if e.Payer == "" {
		return ErrInsufficientTotalPoints
	}
	return ErrInsufficientPointsForPayer
}

// OverflowError reports an earn that would overflow a payer's total.
type OverflowError struct {
	Payer   PayerID
	Balance Points
	Points  Points
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("earning %d points for payer %s would overflow balance %d",
		e.Points, e.Payer, e.Balance)
}

func (e *OverflowError) Unwrap() error { return ErrBalanceOverflow }

// AmountError reports a rejected spend amount.
type AmountError struct {
	Requested Points
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("points to spend must be positive, got %d", e.Requested)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request
// rather than a store failure.
func IsClientError(err error) bool {
	return Code(err) != ""
}

// Code returns the machine code for a caller-facing error, or "" otherwise.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInsufficientTotalPoints):
		return CodeInsufficientTotalPoints
	case errors.Is(err, ErrInsufficientPointsForPayer):
		return CodeInsufficientPointsForPayer
	case errors.Is(err, ErrInvalidPayer):
		return CodeInvalidPayer
	case errors.Is(err, ErrBalanceOverflow):
		return CodeBalanceOverflow
	default:
		return ""
	}
}
