package repoargs

import (
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
)

type CreateTransaction struct {
	InvoiceID     string
	UserID        int64
	OrderID       *int64
	Amount        decimal.Decimal
	AmountUSD     decimal.Decimal
	Currency      string
	Status        domain.TransactionStatus
	Method        string
	ExternalTxnID string
	Fee           decimal.Decimal
	SenderNumber  string
	PayerName     string
	ChargedAmount decimal.Decimal
}

type TransactionStatusUpdate struct {
	ID            int64
	Status        domain.TransactionStatus
	ExternalTxnID string
	// Method способ оплаты со стороны шлюза. Пустая строка оставляет метод,
	// записанный при создании инвойса.
	Method        string
	Fee           decimal.Decimal
	SenderNumber  string
	PayerName     string
	ChargedAmount decimal.Decimal
}
