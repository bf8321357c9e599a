package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
)

type AdminAffiliateHandler struct {
	affiliateSvs AffiliateServicer
}

func NewAdminAffiliateHandler(affiliateSvs AffiliateServicer) *AdminAffiliateHandler {
	return &AdminAffiliateHandler{
		affiliateSvs: affiliateSvs,
	}
}

type CommissionResponse struct {
	ID               int64                   `json:"id"`
	AffiliateID      int64                   `json:"affiliate_id"`
	OrderID          int64                   `json:"order_id"`
	CommissionAmount string                  `json:"commission_amount"`
	Status           domain.CommissionStatus `json:"status"`
}

func newCommissionResponse(commission *domain.Commission) CommissionResponse {
	return CommissionResponse{
		ID:               commission.ID,
		AffiliateID:      commission.AffiliateID,
		OrderID:          commission.OrderID,
		CommissionAmount: commission.CommissionAmount.StringFixed(2),
		Status:           commission.Status,
	}
}

// ApproveCommission POST RouteGroup + AdminCommissionApproveRoute.
func (h *AdminAffiliateHandler) ApproveCommission(c *gin.Context) {
	commissionID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid commission id")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	commission, err := h.affiliateSvs.ApproveCommission(reqCtx, commissionID)
	if err != nil {
		abortAffiliateError(c, err, "commission not found")
		return
	}
	c.JSON(http.StatusOK, okResponse(newCommissionResponse(commission)))
}

// RejectCommission POST RouteGroup + AdminCommissionRejectRoute.
func (h *AdminAffiliateHandler) RejectCommission(c *gin.Context) {
	commissionID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid commission id")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	commission, err := h.affiliateSvs.RejectCommission(reqCtx, commissionID)
	if err != nil {
		abortAffiliateError(c, err, "commission not found")
		return
	}
	c.JSON(http.StatusOK, okResponse(newCommissionResponse(commission)))
}

type PayoutRequest struct {
	Amount string `json:"amount" binding:"required,dgt=0"`
}

type PayoutResponse struct {
	ID          int64               `json:"id"`
	AffiliateID int64               `json:"affiliate_id"`
	Amount      string              `json:"amount"`
	Status      domain.PayoutStatus `json:"status"`
}

// RequestPayout POST RouteGroup + AdminAffiliatePayoutsRoute.
func (h *AdminAffiliateHandler) RequestPayout(c *gin.Context) {
	affiliateID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid affiliate id")
		return
	}

	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, amountErr := decimal.NewFromString(req.Amount)
	if amountErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid amount")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	payout, err := h.affiliateSvs.RequestPayout(reqCtx, affiliateID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientEarnings) {
			abortWithJSON(c, http.StatusUnprocessableEntity, "insufficient earnings")
			return
		}
		abortAffiliateError(c, err, "affiliate not found")
		return
	}

	c.JSON(http.StatusOK, okResponse(PayoutResponse{
		ID:          payout.ID,
		AffiliateID: payout.AffiliateID,
		Amount:      payout.Amount.StringFixed(2),
		Status:      payout.Status,
	}))
}

type EarningsResponse struct {
	AffiliateID       int64  `json:"affiliate_id"`
	ReferralCode      string `json:"referral_code"`
	TotalEarnings     string `json:"total_earnings"`
	AvailableEarnings string `json:"available_earnings"`
}

// GetEarnings GET RouteGroup + AdminUserEarningsRoute.
func (h *AdminAffiliateHandler) GetEarnings(c *gin.Context) {
	userID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid user id")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	affiliate, err := h.affiliateSvs.GetEarnings(reqCtx, userID)
	if err != nil {
		abortAffiliateError(c, err, "affiliate not found")
		return
	}

	c.JSON(http.StatusOK, okResponse(EarningsResponse{
		AffiliateID:       affiliate.ID,
		ReferralCode:      affiliate.ReferralCode,
		TotalEarnings:     affiliate.TotalEarnings.StringFixed(2),
		AvailableEarnings: affiliate.AvailableEarnings.StringFixed(2),
	}))
}

func abortAffiliateError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		abortWithJSON(c, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrAlreadyFinalized):
		abortWithJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		abortWithJSON(c, http.StatusUnprocessableEntity, "invalid amount")
	default:
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
	}
}
