// Package api provides HTTP endpoints for affiliate-facing reads of the
// commission ledger and for registering attributions. Handlers are plain
// net/http so they mount on any router.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

const maxAffiliateIDLen = 255

// Handler provides HTTP endpoints for ledger inspection
type Handler struct {
	config Config
}

// GetCommissions returns the affiliate's commissions in one status.
// Status comes from the "status" query parameter and defaults to pending.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	affiliateID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	status := ledger.CommissionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = ledger.CommissionPending
	}
	switch status {
	case ledger.CommissionPending, ledger.CommissionClaimed, ledger.CommissionPaid, ledger.CommissionVoid:
	default:
		h.handleError(w, r, fmt.Errorf("unknown status %q", status), http.StatusBadRequest)
		return
	}

	commissions, err := h.config.Storage.ListCommissions(r.Context(), affiliateID, status)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to list commissions: %w", err), http.StatusInternalServerError)
		return
	}

	resp := CommissionsResponse{
		AffiliateID: affiliateID,
		Status:      string(status),
		Commissions: make([]CommissionView, 0, len(commissions)),
	}
	for _, c := range commissions {
		resp.Commissions = append(resp.Commissions, commissionView(c))
		resp.TotalMinor += c.AmountMinorUnits
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBalance returns a summary of what the affiliate is owed, what is in
// flight with an unsettled batch, and what has been paid out.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	affiliateID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	aff, err := h.config.Storage.GetAffiliate(r.Context(), affiliateID)
	if err != nil {
		if errors.Is(err, ledger.ErrAffiliateNotFound) {
			h.handleError(w, r, err, http.StatusNotFound)
			return
		}
		h.handleError(w, r, fmt.Errorf("failed to get affiliate: %w", err), http.StatusInternalServerError)
		return
	}

	resp := BalanceResponse{
		AffiliateID:    affiliateID,
		HasPayoutSetup: aff.PayoutAccountRef != "",
	}

	pending, err := h.config.Storage.ListCommissions(r.Context(), affiliateID, ledger.CommissionPending)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to list pending: %w", err), http.StatusInternalServerError)
		return
	}
	for _, c := range pending {
		resp.PendingMinor += c.AmountMinorUnits
	}
	resp.PendingCount = len(pending)

	claimed, err := h.config.Storage.ListCommissions(r.Context(), affiliateID, ledger.CommissionClaimed)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to list claimed: %w", err), http.StatusInternalServerError)
		return
	}
	for _, c := range claimed {
		resp.InFlightMinor += c.AmountMinorUnits
	}

	paid, err := h.config.Storage.ListCommissions(r.Context(), affiliateID, ledger.CommissionPaid)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to list paid: %w", err), http.StatusInternalServerError)
		return
	}
	for _, c := range paid {
		resp.LifetimePaid += c.AmountMinorUnits
	}
	resp.PaidCount = len(paid)

	h.writeJSON(w, http.StatusOK, resp)
}

// RegisterAttribution records a first-touch attribution of an end user to
// a referral code. Conflicts with an existing attribution return 409.
func (h *Handler) RegisterAttribution(w http.ResponseWriter, r *http.Request) {
	if h.config.Processor == nil {
		h.handleError(w, r, fmt.Errorf("attribution registration not configured"), http.StatusNotImplemented)
		return
	}
	if r.Method != http.MethodPost {
		h.handleError(w, r, fmt.Errorf("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req AttributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.EndUserID == "" || req.ReferralCode == "" {
		h.handleError(w, r, fmt.Errorf("end_user_id and referral_code are required"), http.StatusBadRequest)
		return
	}

	err := h.config.Processor.Attribute(r.Context(), req.EndUserID, req.ReferralCode)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAttributionExists):
		h.handleError(w, r, err, http.StatusConflict)
		return
	case errors.Is(err, ledger.ErrAffiliateNotFound):
		h.handleError(w, r, fmt.Errorf("unknown referral code"), http.StatusUnprocessableEntity)
		return
	default:
		h.handleError(w, r, fmt.Errorf("failed to register attribution: %w", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"end_user_id":   req.EndUserID,
		"referral_code": ledger.NormalizeReferralCode(req.ReferralCode),
		"attributed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	affiliateID := h.config.GetAffiliateID(r)
	if affiliateID == "" {
		h.handleError(w, r, fmt.Errorf("affiliate ID not found"), http.StatusUnauthorized)
		return "", false
	}
	if len(affiliateID) > maxAffiliateIDLen {
		h.handleError(w, r, fmt.Errorf("invalid affiliate ID format"), http.StatusBadRequest)
		return "", false
	}
	return affiliateID, true
}

func commissionView(c *ledger.Commission) CommissionView {
	return CommissionView{
		ID:                  c.ID,
		SourceTransactionID: c.SourceTransactionID,
		SourceEventType:     string(c.SourceEventType),
		AmountMinorUnits:    c.AmountMinorUnits,
		Currency:            c.Currency,
		RatePercentApplied:  c.RatePercentApplied,
		Period:              string(c.Period),
		CreatedAt:           c.CreatedAt,
		PaidAt:              c.PaidAt,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.config.Logger.Error("failed to encode response",
			ledger.Field{Key: "error", Value: err.Error()})
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		// Response already sent
		_ = encodeErr
	}
}
