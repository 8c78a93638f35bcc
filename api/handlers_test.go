/*
handlers_test.go - HTTP tests for the points API

Tests for:
- /add, /spend, /balance, /reset happy paths
- Request validation (422) and Ledger rejections (400)
- Lots inspection, health and metrics
- CORS headers
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/generic/store"
	"github.com/warp/points-engine/rewards"
	"github.com/warp/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, rewards.NewLedger(store.NewMemory()), RouterOptions{})
}

func newTestServerWith(t *testing.T, ledger *rewards.Ledger, opts RouterOptions) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(ledger, NewMetrics(), logger)
	srv := httptest.NewServer(NewRouter(h, opts))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func addTx(t *testing.T, srv *httptest.Server, payer string, points int64, timestamp string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"payer": payer, "points": points, "timestamp": timestamp})
	require.NoError(t, err)
	resp := post(t, srv, "/add", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// POINTS ROUTES
// =============================================================================

func TestAPI_ClassicFlow(t *testing.T) {
	// GIVEN: The five classic transactions
	// WHEN: Spending 5000
	// THEN: DANNON -100, UNILEVER -200, MILLER COORS -4700, in that order

	srv := newTestServer(t)

	addTx(t, srv, "DANNON", 300, "2022-10-31T10:00:00Z")
	addTx(t, srv, "UNILEVER", 200, "2022-10-31T11:00:00Z")
	addTx(t, srv, "DANNON", -200, "2022-10-31T15:00:00Z")
	addTx(t, srv, "MILLER COORS", 10000, "2022-11-01T14:00:00Z")
	addTx(t, srv, "DANNON", 1000, "2022-11-02T14:00:00Z")

	resp := post(t, srv, "/spend", `{"points": 5000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []PayerPointsDTO{
		{Payer: "DANNON", Points: -100},
		{Payer: "UNILEVER", Points: -200},
		{Payer: "MILLER COORS", Points: -4700},
	}, decode[[]PayerPointsDTO](t, resp))

	resp = get(t, srv, "/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int64{
		"DANNON":       1000,
		"UNILEVER":     0,
		"MILLER COORS": 5300,
	}, decode[map[string]int64](t, resp))
}

func TestAPI_AddReturnsMessage(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/add", `{"payer":"A","points":100,"timestamp":"2024-01-01T00:00:00Z"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, MessageResponse{Message: "Points added successfully"}, decode[MessageResponse](t, resp))
}

func TestAPI_AddAcceptsNumericStringsAndNaiveTimestamps(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/add", `{"payer":"A","points":"100","timestamp":"2024-01-01T00:00:00"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = post(t, srv, "/add", `{"payer":"A","points":50.0,"timestamp":"2024-01-02 00:00:00"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lots := decode[[]LotDTO](t, get(t, srv, "/api/lots"))
	require.Len(t, lots, 2)
	assert.Equal(t, "2024-01-01T00:00:00Z", lots[0].EarnedAt)
	assert.Equal(t, int64(50), lots[1].Remaining)
}

func TestAPI_ZeroEarnShowsInBalance(t *testing.T) {
	srv := newTestServer(t)

	addTx(t, srv, "X", 0, "2024-01-01T00:00:00Z")

	assert.Equal(t, map[string]int64{"X": 0}, decode[map[string]int64](t, get(t, srv, "/balance")))
	assert.Empty(t, decode[[]LotDTO](t, get(t, srv, "/api/lots")))
}

func TestAPI_EmptyBalanceIsEmptyObject(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/balance")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(body))
}

func TestAPI_ResetClearsEverything(t *testing.T) {
	srv := newTestServer(t)
	addTx(t, srv, "A", 100, "2024-01-01T00:00:00Z")

	resp := post(t, srv, "/reset", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Data reset successfully", decode[MessageResponse](t, resp).Message)

	assert.Empty(t, decode[map[string]int64](t, get(t, srv, "/balance")))
	assert.Empty(t, decode[[]LotDTO](t, get(t, srv, "/api/lots")))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestAPI_LedgerRejections(t *testing.T) {
	srv := newTestServer(t)
	addTx(t, srv, "A", 30, "2024-01-01T00:00:00Z")

	tests := []struct {
		name   string
		path   string
		body   string
		detail string
		code   string
	}{
		{"spend zero", "/spend", `{"points":0}`, "Points to spend must be positive", "invalid_amount"},
		{"spend negative", "/spend", `{"points":-5}`, "Points to spend must be positive", "invalid_amount"},
		{"spend too much", "/spend", `{"points":31}`, "Not enough points", "insufficient_total_points"},
		{"overcorrect", "/add", `{"payer":"A","points":-50,"timestamp":"2024-01-02T00:00:00Z"}`,
			"Insufficient points for this payer", "insufficient_points_for_payer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrorResponse{Detail: tt.detail, Code: tt.code}, decode[ErrorResponse](t, resp))
		})
	}

	// Nothing changed.
	assert.Equal(t, map[string]int64{"A": 30}, decode[map[string]int64](t, get(t, srv, "/balance")))
}

func TestAPI_IntegerBoundaries(t *testing.T) {
	// GIVEN: A holds the largest representable balance
	// WHEN: Adding one more, or correcting by the smallest int64
	// THEN: 400 with a machine code; state is unchanged

	srv := newTestServer(t)
	addTx(t, srv, "A", math.MaxInt64, "2024-01-01T00:00:00Z")

	resp := post(t, srv, "/add", `{"payer":"A","points":1,"timestamp":"2024-01-02T00:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "balance_overflow", decode[ErrorResponse](t, resp).Code)

	resp = post(t, srv, "/add", `{"payer":"GHOST","points":-9223372036854775808,"timestamp":"2024-01-02T00:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_points_for_payer", decode[ErrorResponse](t, resp).Code)

	assert.Equal(t, map[string]int64{"A": math.MaxInt64}, decode[map[string]int64](t, get(t, srv, "/balance")))

	resp = post(t, srv, "/spend", `{"points":9223372036854775807}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []PayerPointsDTO{{Payer: "A", Points: -math.MaxInt64}}, decode[[]PayerPointsDTO](t, resp))
}

func TestAPI_FarFutureTimestampSortsLastOnSQLite(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	srv := newTestServerWith(t, rewards.NewLedger(s), RouterOptions{})

	addTx(t, srv, "LATE", 10, "2300-01-01")
	addTx(t, srv, "EARLY", 10, "2020-01-01")

	resp := post(t, srv, "/spend", `{"points":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []PayerPointsDTO{{Payer: "EARLY", Points: -10}}, decode[[]PayerPointsDTO](t, resp))
}

func TestAPI_MalformedBodies(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"not json", "/add", `{`, ""},
		{"missing payer", "/add", `{"points":1,"timestamp":"2024-01-01T00:00:00Z"}`, "invalid_payer"},
		{"blank payer", "/add", `{"payer":"  ","points":1,"timestamp":"2024-01-01T00:00:00Z"}`, "invalid_payer"},
		{"missing points", "/add", `{"payer":"A","timestamp":"2024-01-01T00:00:00Z"}`, "invalid_points"},
		{"fractional points", "/add", `{"payer":"A","points":1.5,"timestamp":"2024-01-01T00:00:00Z"}`, "invalid_points"},
		{"huge points", "/add", `{"payer":"A","points":1e30,"timestamp":"2024-01-01T00:00:00Z"}`, "invalid_points"},
		{"bad timestamp", "/add", `{"payer":"A","points":1,"timestamp":"yesterday"}`, "invalid_timestamp"},
		{"missing timestamp", "/add", `{"payer":"A","points":1}`, "invalid_timestamp"},
		{"spend missing points", "/spend", `{}`, "invalid_points"},
		{"spend text points", "/spend", `{"points":"abc"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, tt.path, tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Detail)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestAPI_StoreFailureIs500(t *testing.T) {
	// GIVEN: A SQLite store that has been closed underneath the Ledger
	// WHEN: Reading balances
	// THEN: 500 with a generic message

	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	srv := newTestServerWith(t, rewards.NewLedger(s), RouterOptions{})
	require.NoError(t, s.Close())

	resp := get(t, srv, "/balance")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal error", decode[ErrorResponse](t, resp).Detail)
}

// =============================================================================
// INSPECTION
// =============================================================================

func TestAPI_LotsInFIFOOrder(t *testing.T) {
	srv := newTestServer(t)
	addTx(t, srv, "B", 300, "2024-01-02T00:00:00Z")
	addTx(t, srv, "A", 100, "2024-01-01T00:00:00+02:00")

	lots := decode[[]LotDTO](t, get(t, srv, "/api/lots"))

	require.Len(t, lots, 2)
	assert.Equal(t, "A", lots[0].Payer)
	assert.Equal(t, "2023-12-31T22:00:00Z", lots[0].EarnedAt)
	assert.NotEmpty(t, lots[0].ID)
	assert.Equal(t, "B", lots[1].Payer)
}

// =============================================================================
// OPS AND MIDDLEWARE
// =============================================================================

func TestAPI_HealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	addTx(t, srv, "A", 100, "2024-01-01T00:00:00Z")
	post(t, srv, "/spend", `{"points":40}`)
	post(t, srv, "/spend", `{"points":4000}`)

	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, get(t, srv, "/healthz")))

	resp := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `points_operations_total{operation="record",result="success"} 1`)
	assert.Contains(t, text, `points_operations_total{operation="spend",result="success"} 1`)
	assert.Contains(t, text, `points_operations_total{operation="spend",result="error"} 1`)
	assert.Contains(t, text, "points_earned_total 100")
	assert.Contains(t, text, "points_spent_total 40")
}

func TestAPI_CORSPreflight(t *testing.T) {
	srv := newTestServerWith(t, rewards.NewLedger(store.NewMemory()), RouterOptions{
		AllowedOrigins: []string{"http://localhost:3000"},
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/spend", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestAPI_RateLimitOnlyOnWrites(t *testing.T) {
	srv := newTestServerWith(t, rewards.NewLedger(store.NewMemory()), RouterOptions{
		RateLimiter: NewRateLimiter(1, 2),
	})

	body := `{"payer":"A","points":1,"timestamp":"2024-01-01T00:00:00Z"}`
	assert.Equal(t, http.StatusOK, post(t, srv, "/add", body).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, srv, "/add", body).StatusCode)

	resp := post(t, srv, "/add", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, resp).Code)

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, srv, "/balance").StatusCode)
	}
}

func TestAPI_RequestLoggerWritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewHandler(rewards.NewLedger(store.NewMemory()), nil, logger)
	router := NewRouter(h, RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/balance", line["path"])
	assert.Equal(t, float64(http.StatusOK), line["status"])
	assert.NotEmpty(t, line["request_id"])
}
