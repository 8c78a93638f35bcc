/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication and the decoding rules
  that turn them into validated Ledger inputs. The Ledger assumes a caller
  that has already parsed and type-checked its input; that caller is here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Simple response wrappers

WIRE COMPATIBILITY:
  Field names match the public points API that existing clients use:
  {"payer","points","timestamp"} in, {"detail"} on errors.

POINTS DECODING:
  Points arrive as a JSON number or numeric string and are decoded with
  decimal.Decimal so that 100, 100.0 and "100" are all accepted while 100.5,
  1e30 and "abc" are rejected before reaching the Ledger.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/time.go: Timestamp parsing
*/
package api

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/points-engine/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TransactionRequest submits an earn (points > 0) or correction (points < 0).
type TransactionRequest struct {
	Payer     string           `json:"payer"`
	Points    *decimal.Decimal `json:"points"`
	Timestamp string           `json:"timestamp"`
}

// SpendRequest asks to spend points across all payers.
type SpendRequest struct {
	Points *decimal.Decimal `json:"points"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PayerPointsDTO is one line of a spend receipt.
type PayerPointsDTO struct {
	Payer  string `json:"payer"`
	Points int64  `json:"points"`
}

// LotDTO is an open lot.
type LotDTO struct {
	ID        string `json:"id"`
	Payer     string `json:"payer"`
	Remaining int64  `json:"remaining"`
	EarnedAt  string `json:"earned_at"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioResponse reports the state after a scenario load.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO        `json:"scenario"`
	Balances map[string]int64   `json:"balances"`
	Receipts [][]PayerPointsDTO `json:"receipts,omitempty"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is a malformed request body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	minPoints = decimal.NewFromInt(math.MinInt64)
	maxPoints = decimal.NewFromInt(math.MaxInt64)
)

// parsePoints converts a decoded decimal into an integer point amount.
func parsePoints(field string, d *decimal.Decimal) (generic.Points, error) {
	if d == nil {
		return 0, &ValidationError{Field: field, Message: "field required"}
	}
	if !d.IsInteger() {
		return 0, &ValidationError{Field: field, Message: "value is not a valid integer"}
	}
	if d.LessThan(minPoints) || d.GreaterThan(maxPoints) {
		return 0, &ValidationError{Field: field, Message: "value is out of range"}
	}
	return generic.Points(d.IntPart()), nil
}

// Transaction is a validated TransactionRequest.
type Transaction struct {
	Payer    generic.PayerID
	Points   generic.Points
	EarnedAt time.Time
}

// Validate checks the request and normalizes its fields.
func (r TransactionRequest) Validate() (Transaction, error) {
	payer := strings.TrimSpace(r.Payer)
	if payer == "" {
		return Transaction{}, &ValidationError{Field: "payer", Message: "field required"}
	}
	points, err := parsePoints("points", r.Points)
	if err != nil {
		return Transaction{}, err
	}
	earnedAt, err := generic.ParseTimestamp(r.Timestamp)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "timestamp", Message: err.Error()}
	}
	return Transaction{Payer: generic.PayerID(payer), Points: points, EarnedAt: earnedAt}, nil
}

// Validate checks the request. Sign is left to the Ledger.
func (r SpendRequest) Validate() (generic.Points, error) {
	return parsePoints("points", r.Points)
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPayerPointsDTOs(deltas []generic.PayerDelta) []PayerPointsDTO {
	dtos := make([]PayerPointsDTO, len(deltas))
	for i, d := range deltas {
		dtos[i] = PayerPointsDTO{Payer: string(d.Payer), Points: int64(d.Points)}
	}
	return dtos
}

func toLotDTOs(lots []generic.Lot) []LotDTO {
	dtos := make([]LotDTO, len(lots))
	for i, l := range lots {
		dtos[i] = LotDTO{
			ID:        string(l.ID),
			Payer:     string(l.Payer),
			Remaining: int64(l.Remaining),
			EarnedAt:  generic.FormatTimestamp(l.EarnedAt),
		}
	}
	return dtos
}

func toBalancesDTO(balances map[generic.PayerID]generic.Points) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for payer, total := range balances {
		out[string(payer)] = int64(total)
	}
	return out
}
