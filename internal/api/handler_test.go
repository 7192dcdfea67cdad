package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/poolcredit/internal/amm"
	"github.com/ayo6706/poolcredit/internal/api"
	"github.com/ayo6706/poolcredit/internal/api/handler"
	"github.com/ayo6706/poolcredit/internal/api/middleware"
	"github.com/ayo6706/poolcredit/internal/config"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/events"
	"github.com/ayo6706/poolcredit/internal/idempotency"
	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/ayo6706/poolcredit/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "poolcredit-test"
	testJWTAudience = "poolcredit-api-test"

	reserveID    = "wsol"
	collateralID = "meme"
)

func TestMain(m *testing.M) {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	now     time.Time
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	store := memstore.New()
	protocol := amm.NewSimulator()
	svcs := api.Services{
		Vault:          service.NewVaultService(store, reserveID),
		Assets:         service.NewAssetService(store),
		Loans:          service.NewLoanService(store, protocol, reserveID).WithClock(clock),
		Settlement:     service.NewSettlementService(store, protocol, events.NewLogPublisher(zap.NewNop())).WithClock(clock),
		Reconciliation: service.NewReconciliationService(store),
	}
	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		ReserveAsset:       reserveID,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	idemStore := idempotency.NewStore(nil, memstore.NewKeys(), cfg.IdempotencyTTL)
	deps := map[string]handler.Pinger{"database": handler.PingFunc(func(_ context.Context) error { return nil })}
	env.handler = api.NewRouter(cfg, zap.NewNop(), svcs, idemStore, deps).Routes()
	return env
}

type call struct {
	method string
	path   string
	token  string
	key    string
	body   interface{}
}

func (e *testEnv) do(c call) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.method != http.MethodGet {
		key := c.key
		if key == "" {
			key = uuid.NewString()
		}
		req.Header.Set(middleware.IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// ok performs the call and requires the expected status, decoding the body into out.
func (e *testEnv) ok(c call, status int, out interface{}) {
	e.t.Helper()
	w := e.do(c)
	require.Equal(e.t, status, w.Code, w.Body.String())
	if out != nil {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (e *testEnv) login(identity string) (token, role string) {
	e.t.Helper()
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	e.ok(call{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"identity": identity}}, http.StatusOK, &resp)
	return resp.Token, resp.Role
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

// bootstrap initializes a treasury run by "admin" holding 20 reserve, and gives alice the
// fee plus a revoked collateral asset. It returns the admin and alice tokens.
func (e *testEnv) bootstrap() (adminToken, aliceToken string) {
	e.t.Helper()
	adminToken, role := e.login("admin")
	require.Equal(e.t, middleware.RoleUser, role)

	e.ok(call{method: http.MethodPost, path: "/v1/assets", token: adminToken,
		body: map[string]interface{}{"id": reserveID, "decimals": 9}}, http.StatusCreated, nil)
	e.ok(call{method: http.MethodPost, path: "/v1/treasury", token: adminToken,
		body: map[string]interface{}{"syncer": "syncer", "verifier": "verifier", "fixed_fee": 100_000_000}}, http.StatusCreated, nil)
	adminToken, role = e.login("admin")
	require.Equal(e.t, middleware.RoleAdmin, role)

	e.ok(call{method: http.MethodPost, path: "/v1/assets/" + reserveID + "/mint", token: adminToken,
		body: map[string]interface{}{"owner": "admin", "amount_decimal": "20"}}, http.StatusOK, nil)
	e.ok(call{method: http.MethodPost, path: "/v1/treasury/deposit", token: adminToken,
		body: map[string]interface{}{"amount": 20_000_000_000}}, http.StatusOK, nil)
	e.ok(call{method: http.MethodPost, path: "/v1/assets/" + reserveID + "/mint", token: adminToken,
		body: map[string]interface{}{"owner": "alice", "amount": 100_000_000}}, http.StatusOK, nil)

	aliceToken, _ = e.login("alice")
	e.ok(call{method: http.MethodPost, path: "/v1/assets", token: aliceToken,
		body: map[string]interface{}{"id": collateralID, "decimals": 9, "freezable": true}}, http.StatusCreated, nil)
	e.ok(call{method: http.MethodPost, path: "/v1/assets/" + collateralID + "/mint", token: aliceToken,
		body: map[string]interface{}{"owner": "alice", "amount": 5_000_000_000}}, http.StatusOK, nil)
	for _, authority := range []string{"mint", "freeze"} {
		e.ok(call{method: http.MethodPost, path: "/v1/assets/" + collateralID + "/revoke", token: aliceToken,
			body: map[string]string{"authority": authority}}, http.StatusOK, nil)
	}
	return adminToken, aliceToken
}

func (e *testEnv) openLoan(token string) string {
	e.t.Helper()
	var loan struct {
		Pool             string `json:"pool"`
		Principal        uint64 `json:"principal_reserve_amount"`
		PrincipalDisplay string `json:"principal_display"`
		LPAmount         uint64 `json:"lp_amount"`
	}
	e.ok(call{method: http.MethodPost, path: "/v1/loans", token: token, body: map[string]interface{}{
		"asset0":           collateralID,
		"asset1":           reserveID,
		"amount0":          5_000_000_000,
		"amount1":          5_000_000_000,
		"duration_seconds": domain.LoanDurationSeconds,
	}}, http.StatusCreated, &loan)
	assert.Equal(e.t, uint64(5_000_000_000), loan.Principal)
	assert.Equal(e.t, "5", loan.PrincipalDisplay)
	assert.Equal(e.t, uint64(5_000_000_000-amm.LockedLiquidity), loan.LPAmount)
	return loan.Pool
}

func TestLoanLifecycle_Repay(t *testing.T) {
	e := setupAPI(t)
	adminToken, aliceToken := e.bootstrap()
	pool := e.openLoan(aliceToken)

	var treasury struct {
		Balance        uint64 `json:"balance"`
		BalanceDisplay string `json:"balance_display"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/treasury", token: aliceToken}, http.StatusOK, &treasury)
	assert.Equal(t, uint64(15_100_000_000), treasury.Balance)
	assert.Equal(t, "15.1", treasury.BalanceDisplay)

	var result service.SettlementResult
	e.ok(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/repay", token: aliceToken, body: map[string]interface{}{}}, http.StatusOK, &result)
	assert.True(t, result.Loan.Repaid)
	assert.Equal(t, domain.SettlementPathRepay, result.Path)
	assert.Equal(t, uint64(5_000_000_000-amm.LockedLiquidity), result.ReserveReturned)
	assert.Equal(t, uint64(amm.LockedLiquidity), result.Shortfall)

	w := e.do(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/repay", token: aliceToken, body: map[string]interface{}{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LoanAlreadyRepaid", decodeProblem(t, w)["code"])

	var report service.ReconciliationReport
	e.ok(call{method: http.MethodPost, path: "/v1/treasury/reconcile", token: adminToken}, http.StatusOK, &report)
	assert.True(t, report.Balanced)

	var page struct {
		Borrower string                   `json:"borrower"`
		Loans    []map[string]interface{} `json:"loans"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/loans", token: aliceToken}, http.StatusOK, &page)
	assert.Equal(t, "alice", page.Borrower)
	require.Len(t, page.Loans, 1)
	assert.Equal(t, pool, page.Loans[0]["pool"])
}

func TestLoanLifecycle_Liquidate(t *testing.T) {
	e := setupAPI(t)
	_, aliceToken := e.bootstrap()
	pool := e.openLoan(aliceToken)
	keeperToken, _ := e.login("keeper")

	w := e.do(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/liquidate", token: keeperToken, body: map[string]interface{}{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LoanNotExpired", decodeProblem(t, w)["code"])

	e.now = e.now.Add(time.Duration(domain.LoanDurationSeconds+1) * time.Second)

	var expired struct {
		Total int64 `json:"total"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/loans/expired", token: keeperToken}, http.StatusOK, &expired)
	assert.Equal(t, int64(1), expired.Total)

	w = e.do(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/repay", token: aliceToken, body: map[string]interface{}{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LoanExpired", decodeProblem(t, w)["code"])

	var result service.SettlementResult
	e.ok(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/liquidate", token: keeperToken, body: map[string]interface{}{}}, http.StatusOK, &result)
	assert.Equal(t, domain.SettlementPathLiquidation, result.Path)
	assert.Equal(t, "keeper", result.Loan.SettledBy)
	assert.Equal(t, uint64(5_000_000_000-amm.LockedLiquidity), result.CollateralReceived)

	var balance struct {
		Amount uint64 `json:"amount"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/assets/" + collateralID + "/balances/keeper", token: keeperToken}, http.StatusOK, &balance)
	assert.Equal(t, result.CollateralReceived, balance.Amount)
}

func TestLoanLifecycle_PartialRepayThenSweep(t *testing.T) {
	e := setupAPI(t)
	adminToken, aliceToken := e.bootstrap()
	pool := e.openLoan(aliceToken)
	lp := uint64(5_000_000_000 - amm.LockedLiquidity)

	w := e.do(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/sweep", token: adminToken, body: map[string]interface{}{}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LoanNotSettled", decodeProblem(t, w)["code"])

	var repaid service.SettlementResult
	e.ok(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/repay", token: aliceToken,
		body: map[string]interface{}{"lp_amount": lp / 2}}, http.StatusOK, &repaid)
	require.True(t, repaid.Loan.Repaid)

	w = e.do(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/sweep", token: aliceToken, body: map[string]interface{}{}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var swept service.SweepResult
	e.ok(call{method: http.MethodPost, path: "/v1/loans/" + pool + "/sweep", token: adminToken, body: map[string]interface{}{}}, http.StatusOK, &swept)
	assert.Equal(t, lp-lp/2, swept.LPRedeemed)
	assert.Positive(t, swept.ReserveRecovered)
	assert.Equal(t, swept.ReserveRecovered, swept.Loan.SurplusReserveAmount)

	var balance struct {
		Amount uint64 `json:"amount"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/assets/" + collateralID + "/balances/admin", token: adminToken}, http.StatusOK, &balance)
	assert.Equal(t, swept.CollateralReceived, balance.Amount)

	var report service.ReconciliationReport
	e.ok(call{method: http.MethodPost, path: "/v1/treasury/reconcile", token: adminToken}, http.StatusOK, &report)
	assert.True(t, report.Balanced)
}

func TestErrorMapping(t *testing.T) {
	e := setupAPI(t)
	adminToken, aliceToken := e.bootstrap()

	cases := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{
			name:   "withdraw by non-admin",
			call:   call{method: http.MethodPost, path: "/v1/treasury/withdraw", token: aliceToken, body: map[string]interface{}{"amount": 1}},
			status: http.StatusForbidden,
			code:   "Unauthorized",
		},
		{
			name:   "withdraw above balance",
			call:   call{method: http.MethodPost, path: "/v1/treasury/withdraw", token: adminToken, body: map[string]interface{}{"amount": 30_000_000_000}},
			status: http.StatusUnprocessableEntity,
			code:   "InsufficientBalance",
		},
		{
			name:   "second initialization",
			call:   call{method: http.MethodPost, path: "/v1/treasury", token: adminToken, body: map[string]interface{}{"fixed_fee": 1}},
			status: http.StatusBadRequest,
			code:   "InvalidTreasury",
		},
		{
			name:   "unknown loan",
			call:   call{method: http.MethodGet, path: "/v1/loans/nope", token: aliceToken},
			status: http.StatusNotFound,
			code:   "LoanNotFound",
		},
		{
			name: "disallowed principal",
			call: call{method: http.MethodPost, path: "/v1/loans", token: aliceToken, body: map[string]interface{}{
				"asset0": collateralID, "asset1": reserveID, "amount0": 1_000_000_000, "amount1": 4_000_000_000,
				"duration_seconds": domain.LoanDurationSeconds,
			}},
			status: http.StatusBadRequest,
			code:   "InvalidInitSolAmount",
		},
		{
			name:   "duplicate asset",
			call:   call{method: http.MethodPost, path: "/v1/assets", token: aliceToken, body: map[string]interface{}{"id": collateralID, "decimals": 9}},
			status: http.StatusConflict,
			code:   "AssetExists",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(tc.call)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, decodeProblem(t, w)["code"])
		})
	}
}

func TestAuthAndValidation(t *testing.T) {
	e := setupAPI(t)
	_, aliceToken := e.bootstrap()

	cases := []struct {
		name   string
		call   call
		status int
	}{
		{name: "no token", call: call{method: http.MethodGet, path: "/v1/treasury"}, status: http.StatusUnauthorized},
		{name: "garbage token", call: call{method: http.MethodGet, path: "/v1/treasury", token: "x.y.z"}, status: http.StatusUnauthorized},
		{name: "reconcile needs admin role", call: call{method: http.MethodPost, path: "/v1/treasury/reconcile", token: aliceToken}, status: http.StatusForbidden},
		{name: "unknown field", call: call{method: http.MethodPost, path: "/v1/treasury/deposit", token: aliceToken, body: map[string]interface{}{"amt": 1}}, status: http.StatusBadRequest},
		{name: "both amount forms", call: call{method: http.MethodPost, path: "/v1/treasury/deposit", token: aliceToken, body: map[string]interface{}{"amount": 1, "amount_decimal": "1"}}, status: http.StatusBadRequest},
		{name: "sub-unit decimal", call: call{method: http.MethodPost, path: "/v1/treasury/deposit", token: aliceToken, body: map[string]interface{}{"amount_decimal": "0.0000000001"}}, status: http.StatusBadRequest},
		{name: "bad authority kind", call: call{method: http.MethodPost, path: "/v1/assets/" + collateralID + "/revoke", token: aliceToken, body: map[string]string{"authority": "owner"}}, status: http.StatusBadRequest},
		{name: "bad limit", call: call{method: http.MethodGet, path: "/v1/loans?limit=-1", token: aliceToken}, status: http.StatusBadRequest},
		{name: "empty login", call: call{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"identity": " "}}, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(tc.call)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestIdempotency(t *testing.T) {
	e := setupAPI(t)
	adminToken, aliceToken := e.bootstrap()
	deposit := map[string]interface{}{"amount": 1}

	// bootstrap deposited all of admin's reserve.
	e.ok(call{method: http.MethodPost, path: "/v1/assets/" + reserveID + "/mint", token: adminToken,
		body: map[string]interface{}{"owner": "admin", "amount": 2}}, http.StatusOK, nil)

	first := e.do(call{method: http.MethodPost, path: "/v1/treasury/deposit", token: adminToken, key: "dep-1", body: deposit})
	require.Equal(t, http.StatusOK, first.Code)

	replay := e.do(call{method: http.MethodPost, path: "/v1/treasury/deposit", token: adminToken, key: "dep-1", body: deposit})
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "postgres", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	var treasury struct {
		Balance uint64 `json:"balance"`
	}
	e.ok(call{method: http.MethodGet, path: "/v1/treasury", token: adminToken}, http.StatusOK, &treasury)
	assert.Equal(t, uint64(20_000_000_001), treasury.Balance)

	conflict := e.do(call{method: http.MethodPost, path: "/v1/treasury/deposit", token: adminToken, key: "dep-1", body: map[string]interface{}{"amount": 2}})
	assert.Equal(t, http.StatusConflict, conflict.Code)

	// Keys are scoped per caller: alice reusing admin's key is a fresh request.
	other := e.do(call{method: http.MethodPost, path: "/v1/treasury/deposit", token: aliceToken, key: "dep-1", body: deposit})
	assert.Empty(t, other.Header().Get("X-Idempotent-Replay"))

	req := httptest.NewRequest(http.MethodPost, "/v1/treasury/deposit", bytes.NewReader([]byte(`{"amount":1}`)))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := setupAPI(t)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health/live"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/swagger/index.html"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()
			e.handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
