package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/poolcredit/internal/api/middleware"
	"github.com/ayo6706/poolcredit/internal/api/problem"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondServiceError translates a service failure into a problem response. Domain
// errors map by class and carry their code; anything else is a 500 and is logged.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := domain.AsError(err); ok {
		status := statusForClass(de.Class)
		problem.WriteCode(w, r, status, problem.Type(string(de.Class)+"/"+kebab(de.Code)), de.Code, de.Message, "")
		return
	}
	if status, problemType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, problemType, msg)
		return
	}
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("identity", middleware.IdentityFromContext(r.Context())),
		zap.Error(err),
	)
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

func statusForClass(class domain.ErrorClass) int {
	switch class {
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassState, domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassResource, domain.ClassAssetSafety:
		return http.StatusUnprocessableEntity
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// kebab turns an error code such as LoanAlreadyRepaid into loan-already-repaid.
func kebab(code string) string {
	var b strings.Builder
	for i, c := range code {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

// decodeJSON reads a bounded JSON body into dst and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

// caller returns the authenticated identity. Routes behind AuthMiddleware always have
// one; an empty result is answered with 401.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == "" {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-identity", "missing identity in auth context")
		return "", false
	}
	return identity, true
}

func queryInt32(r *http.Request, name string, def, max int32) (int32, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}
	if max > 0 && int32(v) > max {
		return max, nil
	}
	return int32(v), nil
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "55P03": // lock_not_available
		return http.StatusConflict, "db/lock-not-available", "record is locked, retry", true
	default:
		return 0, "", "", false
	}
}
