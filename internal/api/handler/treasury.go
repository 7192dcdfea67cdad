package handler

import (
	"context"
	"net/http"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/service"
)

type TreasuryHandler struct {
	svc *service.VaultService
}

func NewTreasuryHandler(svc *service.VaultService) *TreasuryHandler {
	return &TreasuryHandler{svc: svc}
}

type treasuryView struct {
	*models.TreasuryConfig
	BalanceDisplay  string `json:"balance_display"`
	SurplusDisplay  string `json:"surplus_display"`
	FixedFeeDisplay string `json:"fixed_fee_display"`
}

func newTreasuryView(cfg *models.TreasuryConfig) treasuryView {
	return treasuryView{
		TreasuryConfig:  cfg,
		BalanceDisplay:  displayAmount(cfg.Balance),
		SurplusDisplay:  displayAmount(cfg.Surplus),
		FixedFeeDisplay: displayAmount(cfg.FixedFee),
	}
}

// Initialize creates the treasury with the caller as administrator.
func (h *TreasuryHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Syncer   string `json:"syncer"`
		Verifier string `json:"verifier"`
		FixedFee uint64 `json:"fixed_fee"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.svc.InitializeTreasury(r.Context(), service.InitializeTreasuryRequest{
		Administrator: identity,
		Syncer:        req.Syncer,
		Verifier:      req.Verifier,
		FixedFee:      req.FixedFee,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, newTreasuryView(cfg))
}

func (h *TreasuryHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Treasury(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newTreasuryView(cfg))
}

func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Deposit)
}

func (h *TreasuryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Withdraw)
}

func (h *TreasuryHandler) WithdrawSurplus(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.WithdrawSurplus)
}

type treasuryMove func(ctx context.Context, caller string, amount uint64) (*models.TreasuryConfig, error)

func (h *TreasuryHandler) move(w http.ResponseWriter, r *http.Request, fn treasuryMove) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req amountField
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := req.baseUnits(domain.ReserveDecimals)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return
	}

	cfg, err := fn(r.Context(), identity, amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newTreasuryView(cfg))
}

func (h *TreasuryHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		FixedFee uint64 `json:"fixed_fee"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.svc.SetFee(r.Context(), identity, req.FixedFee)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newTreasuryView(cfg))
}

func (h *TreasuryHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.svc.SetPaused(r.Context(), identity, req.Paused)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newTreasuryView(cfg))
}
