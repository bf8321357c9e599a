package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/internal/service"
)

type WebhookHandler struct {
	paymentSvs PaymentServicer
}

func NewWebhookHandler(paymentSvs PaymentServicer) *WebhookHandler {
	return &WebhookHandler{
		paymentSvs: paymentSvs,
	}
}

// PaymentWebhookRequest тело уведомления шлюза. Имена полей - контракт шлюза,
// менять их нельзя.
type PaymentWebhookRequest struct {
	InvoiceID     string `json:"invoice_id" binding:"required"`
	Status        string `json:"status" binding:"required"`
	Amount        string `json:"amount" binding:"required,dgt=0"`
	TransactionID string `json:"transaction_id"`
	PaymentMethod string `json:"payment_method"`
	SenderNumber  string `json:"sender_number"`
	Fee           string `json:"fee"`
	Date          string `json:"date"`
	FullName      string `json:"full_name"`
	ChargedAmount string `json:"charged_amount"`
}

type PaymentWebhookResponse struct {
	InvoiceID        string                   `json:"invoice_id"`
	Status           domain.TransactionStatus `json:"status"`
	AlreadyProcessed bool                     `json:"already_processed"`
}

// PaymentWebhook POST RouteGroup + PaymentWebhookRoute.
func (h *WebhookHandler) PaymentWebhook(c *gin.Context) {
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid payload")
		return
	}

	amount, amountErr := decimal.NewFromString(req.Amount)
	if amountErr != nil {
		abortWithJSON(c, http.StatusBadRequest, "invalid amount")
		return
	}
	fee := decimal.Zero
	if req.Fee != "" {
		var feeErr error
		if fee, feeErr = decimal.NewFromString(req.Fee); feeErr != nil {
			abortWithJSON(c, http.StatusBadRequest, "invalid fee")
			return
		}
	}
	chargedAmount := decimal.Zero
	if req.ChargedAmount != "" {
		var chargedErr error
		if chargedAmount, chargedErr = decimal.NewFromString(req.ChargedAmount); chargedErr != nil {
			abortWithJSON(c, http.StatusBadRequest, "invalid charged_amount")
			return
		}
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	result, err := h.paymentSvs.ProcessNotification(reqCtx, service.GatewayNotification{
		InvoiceID:     req.InvoiceID,
		Status:        req.Status,
		Amount:        amount,
		ExternalTxnID: req.TransactionID,
		Method:        req.PaymentMethod,
		Fee:           fee,
		SenderNumber:  req.SenderNumber,
		PayerName:     req.FullName,
		Date:          req.Date,
		ChargedAmount: chargedAmount,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			abortWithJSON(c, http.StatusNotFound, "unknown invoice")
			return
		}
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, okResponse(PaymentWebhookResponse{
		InvoiceID:        result.Transaction.InvoiceID,
		Status:           result.Transaction.Status,
		AlreadyProcessed: result.AlreadyProcessed,
	}))
}

type CreateInvoiceRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    string `json:"amount" binding:"required,dgt=0"`
	Currency  string `json:"currency" binding:"required"`
	Method    string `json:"method" binding:"required"`
}

type InvoiceResponse struct {
	InvoiceID string                   `json:"invoice_id"`
	Status    domain.TransactionStatus `json:"status"`
}

// CreateInvoice POST RouteGroup + PaymentInvoiceRoute.
//
// Инициация депозита: создает ожидающую оплаты транзакцию до редиректа юзера
// на шлюз. Ретрай с тем же invoice_id безопасен - вернется существующая запись.
func (h *WebhookHandler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
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

	transaction, err := h.paymentSvs.CreateInvoice(reqCtx, repoargs.CreateTransaction{
		InvoiceID: req.InvoiceID,
		UserID:    req.UserID,
		Amount:    amount,
		Currency:  req.Currency,
		Method:    req.Method,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			abortWithJSON(c, http.StatusUnprocessableEntity, "invalid amount")
		case errors.Is(err, domain.ErrRecordNotFound):
			abortWithJSON(c, http.StatusNotFound, "unknown user")
		default:
			_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		}
		return
	}

	c.JSON(http.StatusOK, okResponse(InvoiceResponse{
		InvoiceID: transaction.InvoiceID,
		Status:    transaction.Status,
	}))
}
