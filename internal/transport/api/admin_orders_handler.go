package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/service"
)

type AdminOrdersHandler struct {
	settlementSvs SettlementServicer
}

func NewAdminOrdersHandler(settlementSvs SettlementServicer) *AdminOrdersHandler {
	return &AdminOrdersHandler{
		settlementSvs: settlementSvs,
	}
}

type RefundRequest struct {
	Type   domain.RefundKind `json:"type" binding:"required,oneof=full partial"`
	Amount string            `json:"amount" binding:"omitempty,dgt=0"`
}

type MarkPartialRequest struct {
	NotGoing int64 `json:"not_going" binding:"required,gt=0"`
}

type BulkStatusRequest struct {
	OrderIDs []int64 `json:"order_ids" binding:"required,min=1"`
	Status   string  `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID      int64              `json:"id"`
	UserID  int64              `json:"user_id"`
	Qty     int64              `json:"qty"`
	Remains int64              `json:"remains"`
	Charge  string             `json:"charge"`
	Status  domain.OrderStatus `json:"status"`
}

func newOrderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:      order.ID,
		UserID:  order.UserID,
		Qty:     order.Qty,
		Remains: order.Remains,
		Charge:  order.Charge.StringFixed(2),
		Status:  order.Status,
	}
}

// Refund POST RouteGroup + AdminOrderRefundRoute.
func (h *AdminOrdersHandler) Refund(c *gin.Context) {
	orderID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid order id")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}

	args := service.RefundArgs{OrderID: orderID, Kind: req.Type}
	if req.Amount != "" {
		amount, amountErr := decimal.NewFromString(req.Amount)
		if amountErr != nil {
			abortWithJSON(c, http.StatusBadRequest, "invalid amount")
			return
		}
		args.Amount = &amount
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	order, err := h.settlementSvs.Refund(reqCtx, args)
	if err != nil {
		abortSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, okResponse(newOrderResponse(order)))
}

// MarkPartial POST RouteGroup + AdminOrderPartialRoute.
func (h *AdminOrdersHandler) MarkPartial(c *gin.Context) {
	orderID, idErr := paramInt64(c, "id")
	if idErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid order id")
		return
	}

	var req MarkPartialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	order, err := h.settlementSvs.MarkPartial(reqCtx, orderID, req.NotGoing)
	if err != nil {
		abortSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, okResponse(newOrderResponse(order)))
}

type BulkStatusResponse struct {
	Updated []int64               `json:"updated"`
	Skipped []SkippedOrderPayload `json:"skipped"`
}

type SkippedOrderPayload struct {
	OrderID int64              `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
}

// SetStatusBulk POST RouteGroup + AdminOrdersStatusRoute. Массовые операции
// идут дольше одиночных, поэтому таймаут свой.
func (h *AdminOrdersHandler) SetStatusBulk(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}

	status := domain.OrderStatus(req.Status)
	if !status.IsValid() {
		abortWithJSON(c, http.StatusUnprocessableEntity, "unknown status")
		return
	}

	reqCtx, cancel := context.WithTimeout(c, BulkServiceTimeout)
	defer cancel()

	result, err := h.settlementSvs.SetStatusBulk(reqCtx, req.OrderIDs, status)
	if err != nil {
		abortSettlementError(c, err)
		return
	}

	response := BulkStatusResponse{
		Updated: result.Updated,
		Skipped: make([]SkippedOrderPayload, len(result.Skipped)),
	}
	for i, skipped := range result.Skipped {
		response.Skipped[i] = SkippedOrderPayload{OrderID: skipped.OrderID, Status: skipped.Status}
	}
	c.JSON(http.StatusOK, okResponse(response))
}

// abortSettlementError транслирует доменные ошибки расчетов в http статусы.
func abortSettlementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		abortWithJSON(c, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrAlreadyFinalized):
		abortWithJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		abortWithJSON(c, http.StatusUnprocessableEntity, "invalid amount")
	case errors.Is(err, domain.ErrInsufficientBalance):
		abortWithJSON(c, http.StatusUnprocessableEntity, "insufficient balance")
	default:
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
	}
}

func paramInt64(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64) //nolint:wrapcheck
}
