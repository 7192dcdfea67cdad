package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/poolcredit/internal/custody"
	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/go-chi/chi/v5"
)

type AssetHandler struct {
	svc *service.AssetService
}

func NewAssetHandler(svc *service.AssetService) *AssetHandler {
	return &AssetHandler{svc: svc}
}

// Register creates an asset with the caller as its mint (and optionally freeze) authority.
func (h *AssetHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ID        string `json:"id"`
		Decimals  int32  `json:"decimals"`
		Freezable bool   `json:"freezable"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := h.svc.RegisterAsset(r.Context(), identity, service.RegisterAssetRequest{
		ID:        req.ID,
		Decimals:  req.Decimals,
		Freezable: req.Freezable,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, asset)
}

func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := h.svc.Asset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, asset)
}

func (h *AssetHandler) Mint(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Owner string `json:"owner"`
		amountField
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	assetID := chi.URLParam(r, "id")
	asset, err := h.svc.Asset(r.Context(), assetID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	amount, err := req.baseUnits(asset.Decimals)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return
	}

	account, err := h.svc.MintTo(r.Context(), identity, assetID, strings.TrimSpace(req.Owner), amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *AssetHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Authority string `json:"authority"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	kind := service.AuthorityKind(strings.ToLower(strings.TrimSpace(req.Authority)))
	if kind != service.AuthorityMint && kind != service.AuthorityFreeze {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-authority", `authority must be "mint" or "freeze"`)
		return
	}

	asset, err := h.svc.RevokeAuthority(r.Context(), identity, chi.URLParam(r, "id"), kind)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, asset)
}

// Balance reports owner's associated account of an asset. Balances are public ledger state.
func (h *AssetHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	assetID := chi.URLParam(r, "id")
	asset, err := h.svc.Asset(r.Context(), assetID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	units, err := h.svc.Balance(r.Context(), owner, assetID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":          owner,
		"asset":          assetID,
		"address":        custody.AssociatedAccount(owner, assetID),
		"amount":         units,
		"amount_display": domain.Amount{BaseUnits: units, Decimals: asset.Decimals}.String(),
	})
}
