package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/internal/service"
)

// SettlementServicer интерфейс исключительно для моков.
type SettlementServicer interface {
	MarkPartial(ctx context.Context, orderID int64, notGoing int64) (*domain.Order, error)
	Refund(ctx context.Context, args service.RefundArgs) (*domain.Order, error)
	SetStatusBulk(ctx context.Context, orderIDs []int64, target domain.OrderStatus) (*service.BulkStatusResult, error)
}

type PaymentServicer interface {
	ProcessNotification(ctx context.Context, notification service.GatewayNotification) (*service.NotificationResult, error)
	CreateInvoice(ctx context.Context, args repoargs.CreateTransaction) (*domain.Transaction, error)
}

type AffiliateServicer interface {
	ApproveCommission(ctx context.Context, commissionID int64) (*domain.Commission, error)
	RejectCommission(ctx context.Context, commissionID int64) (*domain.Commission, error)
	RequestPayout(ctx context.Context, affiliateID int64, amount decimal.Decimal) (*domain.Payout, error)
	GetEarnings(ctx context.Context, userID int64) (*domain.Affiliate, error)
}
