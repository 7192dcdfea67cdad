package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxPageSize = 100

type LoanHandler struct {
	loans      *service.LoanService
	settlement *service.SettlementService
	treasury   *service.VaultService
}

func NewLoanHandler(loans *service.LoanService, settlement *service.SettlementService, treasury *service.VaultService) *LoanHandler {
	return &LoanHandler{loans: loans, settlement: settlement, treasury: treasury}
}

type loanView struct {
	models.Loan
	Deadline         int64  `json:"deadline"`
	PrincipalDisplay string `json:"principal_display"`
}

func newLoanView(loan models.Loan) loanView {
	return loanView{
		Loan:             loan,
		Deadline:         loan.DeadlineUnix(),
		PrincipalDisplay: displayAmount(loan.PrincipalReserveAmount),
	}
}

// Create opens a loan for the caller. custody_owner defaults to the treasury administrator.
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Asset0          string `json:"asset0"`
		Asset1          string `json:"asset1"`
		Amount0         uint64 `json:"amount0"`
		Amount1         uint64 `json:"amount1"`
		OpenTime        uint64 `json:"open_time"`
		DurationSeconds int64  `json:"duration_seconds"`
		CustodyOwner    string `json:"custody_owner"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	custodyOwner := strings.TrimSpace(req.CustodyOwner)
	if custodyOwner == "" {
		cfg, err := h.treasury.Treasury(r.Context())
		if err != nil {
			RespondServiceError(w, r, err)
			return
		}
		custodyOwner = cfg.Administrator
	}

	loan, err := h.loans.CreateLoan(r.Context(), service.CreateLoanRequest{
		Borrower:        identity,
		Asset0:          strings.TrimSpace(req.Asset0),
		Asset1:          strings.TrimSpace(req.Asset1),
		Amount0:         req.Amount0,
		Amount1:         req.Amount1,
		OpenTime:        req.OpenTime,
		DurationSeconds: req.DurationSeconds,
		CustodyOwner:    custodyOwner,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/loans/"+loan.Pool)
	RespondJSON(w, http.StatusCreated, newLoanView(*loan))
}

func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.GetLoan(r.Context(), chi.URLParam(r, "pool"))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newLoanView(*loan))
}

// List pages through a borrower's loans, newest first. The borrower defaults to the caller.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	borrower := strings.TrimSpace(r.URL.Query().Get("borrower"))
	if borrower == "" {
		borrower = identity
	}
	limit, err := queryInt32(r, "limit", 20, maxPageSize)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-query", err.Error())
		return
	}
	offset, err := queryInt32(r, "offset", 0, 0)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-query", err.Error())
		return
	}

	loans, err := h.loans.ListLoans(r.Context(), borrower, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	views := make([]loanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, newLoanView(l))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"borrower": borrower,
		"limit":    limit,
		"offset":   offset,
		"loans":    views,
	})
}

func (h *LoanHandler) Expired(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt32(r, "limit", 20, maxPageSize)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-query", err.Error())
		return
	}
	loans, total, err := h.loans.ExpiredOpenLoans(r.Context(), limit)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	views := make([]loanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, newLoanView(l))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"total": total, "loans": views})
}

// SendLPTokens moves the caller's LP balance for the pool into the loan's custody.
func (h *LoanHandler) SendLPTokens(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	loan, moved, err := h.loans.SendLPTokens(r.Context(), identity, chi.URLParam(r, "pool"))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"moved": moved, "loan": newLoanView(*loan)})
}

func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.settlement.Repay)
}

func (h *LoanHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.settlement.Liquidate)
}

type settleFunc func(ctx context.Context, req service.SettleRequest) (*service.SettlementResult, error)

func (h *LoanHandler) settle(w http.ResponseWriter, r *http.Request, fn settleFunc) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		LPAmount         uint64 `json:"lp_amount"`
		MinReserveOut    uint64 `json:"min_reserve_out"`
		MinCollateralOut uint64 `json:"min_collateral_out"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := fn(r.Context(), service.SettleRequest{
		Pool:             chi.URLParam(r, "pool"),
		Caller:           identity,
		LPAmount:         req.LPAmount,
		MinReserveOut:    req.MinReserveOut,
		MinCollateralOut: req.MinCollateralOut,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// Sweep redeems LP left in custody after a partial settlement. Administrator only.
func (h *LoanHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		MinReserveOut    uint64 `json:"min_reserve_out"`
		MinCollateralOut uint64 `json:"min_collateral_out"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.settlement.SweepResidualLP(r.Context(), service.SweepRequest{
		Pool:             chi.URLParam(r, "pool"),
		Caller:           identity,
		MinReserveOut:    req.MinReserveOut,
		MinCollateralOut: req.MinCollateralOut,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
