/*
handlers.go - HTTP API handlers for the points Ledger

PURPOSE:
  Exposes the Ledger via REST API. Handles HTTP request/response, JSON
  decoding and validation, and maps Ledger failures to responses.

ENDPOINTS:
  Points:
    POST   /add                  Record an earn or a payer correction
    POST   /spend                Spend points across payers (FIFO)
    GET    /balance              Balance per payer
    POST   /reset                Clear all lots and balances

  Inspection:
    GET    /api/lots             Open lots in FIFO order

  Scenarios:
    GET    /api/scenarios        List demo scenarios
    POST   /api/scenarios/load   Reset and load a demo scenario

  Ops:
    GET    /healthz              Liveness
    GET    /metrics              Prometheus

REQUEST FLOW:
  1. Decode JSON body
  2. Validate input (dto.go)
  3. Call the Ledger
  4. Record metrics
  5. Serialize response or error

ERROR HANDLING:
  Errors are returned as JSON {"detail", "code"} with HTTP status:
  - 400: Ledger rejections (invalid amount, insufficient points, overflow)
  - 404: Unknown scenario
  - 422: Malformed or invalid request body
  - 429: Rate limited
  - 500: Store failures

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - rewards/ledger.go: The Ledger
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/warp/points-engine/generic"
	"github.com/warp/points-engine/rewards"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger  *rewards.Ledger
	Metrics *Metrics
	Logger  *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(ledger *rewards.Ledger, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Ledger:  ledger,
		Metrics: metrics,
		Logger:  logger,
	}
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// AddTransaction records an earn or a correction.
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body", err)
		return
	}
	tx, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid transaction", err)
		return
	}

	op := opRecord
	if tx.Points.IsNegative() {
		op = opCorrect
	}

	started := time.Now()
	err = h.Ledger.RecordOrCorrect(r.Context(), tx.Payer, tx.Points, tx.EarnedAt)
	h.Metrics.Observe(op, started, err)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.Metrics.ObservePoints(op, tx.Points)

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Points added successfully"})
}

// SpendPoints spends across all payers and returns who funded it.
func (h *Handler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body", err)
		return
	}
	points, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid spend request", err)
		return
	}

	started := time.Now()
	receipt, err := h.Ledger.Spend(r.Context(), points)
	h.Metrics.Observe(opSpend, started, err)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.Metrics.ObservePoints(opSpend, receipt.Total())

	writeJSON(w, http.StatusOK, toPayerPointsDTOs(receipt))
}

// GetBalances returns the total per payer.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	balances, err := h.Ledger.Balances(r.Context())
	h.Metrics.Observe(opBalance, started, err)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalancesDTO(balances))
}

// ResetLedger clears all data.
func (h *Handler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	err := h.Ledger.Reset(r.Context())
	h.Metrics.Observe(opReset, started, err)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Data reset successfully"})
}

// ListLots returns the open lots, oldest first.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Ledger.Lots(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLotDTOs(lots))
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

// writeLedgerError maps a Ledger failure onto a response. Client errors are
// 400s; anything else is a store failure and is logged.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	if generic.IsClientError(err) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: ledgerMessage(err), Code: generic.Code(err)})
		return
	}
	h.Logger.ErrorContext(r.Context(), "ledger operation failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "Internal error", nil)
}

// ledgerMessage returns the client-facing wording for a Ledger rejection.
func ledgerMessage(err error) string {
	switch {
	case errors.Is(err, generic.ErrInvalidAmount):
		return "Points to spend must be positive"
	case errors.Is(err, generic.ErrInsufficientTotalPoints):
		return "Not enough points"
	case errors.Is(err, generic.ErrInsufficientPointsForPayer):
		return "Insufficient points for this payer"
	case errors.Is(err, generic.ErrInvalidPayer):
		return "Payer is required"
	case errors.Is(err, generic.ErrBalanceOverflow):
		return "Points would exceed the maximum balance for this payer"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Detail: message}
	if err != nil {
		resp.Detail = message + ": " + err.Error()
		var verr *ValidationError
		if errors.As(err, &verr) {
			resp.Code = "invalid_" + verr.Field
		}
	}
	writeJSON(w, status, resp)
}
