/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the Ledger with lots from
	several payers, then optionally spend, so FIFO behavior can be shown
	end to end without hand-crafting requests.

AVAILABLE SCENARIOS:

	fetch-classic:      Five transactions across three payers, spend 5000
	fifo-single-payer:  Two lots for one payer, spend 150
	fifo-cross-payer:   Interleaved payers, spend exactly the oldest lot

HOW SCENARIOS WORK:
 1. Reset the Ledger (clear all lots and balances)
 2. Record each transaction through RecordOrCorrect
 3. Run each spend through Spend and keep the receipts

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fetch-classic"}

NOTE:

	Scenarios reset the Ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared helpers
  - rewards/ledger.go: Operations used by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/points-engine/generic"
	"github.com/warp/points-engine/rewards"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioTx struct {
	payer  generic.PayerID
	points generic.Points
	at     time.Time
}

type scenario struct {
	ScenarioDTO
	transactions []scenarioTx
	spends       []generic.Points
}

func ts(s string) time.Time {
	t, err := generic.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fetch-classic",
			Name:        "Classic Three Payers",
			Description: "DANNON, UNILEVER and MILLER COORS lots with a DANNON correction, then spend 5000",
		},
		transactions: []scenarioTx{
			{payer: "DANNON", points: 300, at: ts("2022-10-31T10:00:00Z")},
			{payer: "UNILEVER", points: 200, at: ts("2022-10-31T11:00:00Z")},
			{payer: "DANNON", points: -200, at: ts("2022-10-31T15:00:00Z")},
			{payer: "MILLER COORS", points: 10000, at: ts("2022-11-01T14:00:00Z")},
			{payer: "DANNON", points: 1000, at: ts("2022-11-02T14:00:00Z")},
		},
		spends: []generic.Points{5000},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fifo-single-payer",
			Name:        "FIFO Single Payer",
			Description: "Payer A earns 100 then 200; spending 150 exhausts the older lot first",
		},
		transactions: []scenarioTx{
			{payer: "A", points: 100, at: ts("2024-01-01T00:00:00Z")},
			{payer: "A", points: 200, at: ts("2024-01-02T00:00:00Z")},
		},
		spends: []generic.Points{150},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fifo-cross-payer",
			Name:        "FIFO Across Payers",
			Description: "A 5000, B 300, A 200 in time order; spending 5000 only touches the oldest lot",
		},
		transactions: []scenarioTx{
			{payer: "A", points: 5000, at: ts("2024-01-01T00:00:00Z")},
			{payer: "B", points: 300, at: ts("2024-01-02T00:00:00Z")},
			{payer: "A", points: 200, at: ts("2024-01-03T00:00:00Z")},
		},
		spends: []generic.Points{5000},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the Ledger and replays a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	ctx := r.Context()
	receipts, err := loadScenario(ctx, h.Ledger, s)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	balances, err := h.Ledger.Balances(ctx)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.setCurrentScenario(s.ID)
	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", s.ID)

	resp := LoadScenarioResponse{
		Scenario: s.ScenarioDTO,
		Balances: toBalancesDTO(balances),
	}
	for _, receipt := range receipts {
		resp.Receipts = append(resp.Receipts, toPayerPointsDTOs(receipt))
	}
	writeJSON(w, http.StatusOK, resp)
}

func loadScenario(ctx context.Context, ledger *rewards.Ledger, s scenario) ([]rewards.Receipt, error) {
	if err := ledger.Reset(ctx); err != nil {
		return nil, err
	}
	for _, tx := range s.transactions {
		if err := ledger.RecordOrCorrect(ctx, tx.payer, tx.points, tx.at); err != nil {
			return nil, fmt.Errorf("scenario %s: %s %d: %w", s.ID, tx.payer, tx.points, err)
		}
	}
	var receipts []rewards.Receipt
	for _, points := range s.spends {
		receipt, err := ledger.Spend(ctx, points)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: spend %d: %w", s.ID, points, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}
