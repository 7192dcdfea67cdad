package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/poolcredit/internal/api/middleware"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/service"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	treasury *service.VaultService
}

func NewAuthHandler(treasury *service.VaultService) *AuthHandler {
	return &AuthHandler{treasury: treasury}
}

// Login is a mock login: any identity gets a token, and the treasury administrator gets
// the admin role on top.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		RespondError(w, r, http.StatusBadRequest, "auth/invalid-identity", "identity is required")
		return
	}

	role := middleware.RoleUser
	cfg, err := h.treasury.Treasury(r.Context())
	switch {
	case err == nil:
		if cfg.Administrator == identity {
			role = middleware.RoleAdmin
		}
	case errors.Is(err, domain.ErrInvalidTreasury):
	default:
		RespondServiceError(w, r, err)
		return
	}

	token, err := middleware.IssueToken(identity, role, tokenTTL)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/misconfigured", "Failed to sign token")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"role":  role,
	})
}
