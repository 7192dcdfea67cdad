package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRespondServiceError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{name: "authorization", err: domain.ErrUnauthorized, status: http.StatusForbidden, body: `"code":"Unauthorized"`},
		{name: "state", err: domain.ErrLoanExpired, status: http.StatusConflict, body: `"type":"https://errors.poolcredit.dev/state/loan-expired"`},
		{name: "validation", err: domain.ErrInvalidDuration, status: http.StatusBadRequest, body: `"code":"InvalidDuration"`},
		{name: "resource", err: domain.ErrInsufficientBalance, status: http.StatusUnprocessableEntity, body: `"code":"InsufficientBalance"`},
		{name: "asset safety", err: domain.ErrFreezeAuthorityNotRevoked, status: http.StatusUnprocessableEntity, body: `"code":"FreezeAuthorityNotRevoked"`},
		{name: "not found", err: domain.ErrLoanNotFound, status: http.StatusNotFound, body: `"code":"LoanNotFound"`},
		{name: "wrapped conflict", err: fmt.Errorf("lock: %w", domain.ErrConcurrentUpdate), status: http.StatusConflict, body: `"code":"ConcurrentUpdate"`},
		{name: "postgres unique", err: &pgconn.PgError{Code: "23505"}, status: http.StatusConflict, body: "db/unique-violation"},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError, body: "unexpected server error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
			w := httptest.NewRecorder()
			RespondServiceError(w, r, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}

func TestKebab(t *testing.T) {
	assert.Equal(t, "loan-already-repaid", kebab("LoanAlreadyRepaid"))
	assert.Equal(t, "unauthorized", kebab("Unauthorized"))
}
