package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error)
	ApplyLedgerDeltas(ctx context.Context, deltas repoargs.LedgerDeltas) error
}

type OrderRepository interface {
	Create(ctx context.Context, args repoargs.CreateOrder) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.Order, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error)
	UpdateSettlement(ctx context.Context, update repoargs.SettlementUpdate) (*domain.Order, error)
	BatchUpdateStatus(ctx context.Context, ids []int64, status domain.OrderStatus) error
}

type TransactionRepository interface {
	Create(ctx context.Context, args repoargs.CreateTransaction) (*domain.Transaction, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Transaction, error)
	GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*domain.Transaction, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.Transaction, error)
	UpdateStatus(ctx context.Context, update repoargs.TransactionStatusUpdate) (*domain.Transaction, error)
}

type AffiliateRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Affiliate, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Affiliate, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.Affiliate, error)
	CreateCommission(ctx context.Context, args repoargs.CreateCommission) (*domain.Commission, error)
	GetCommissionByIDForUpdate(ctx context.Context, id int64) (*domain.Commission, error)
	UpdateCommissionStatus(ctx context.Context, id int64, status domain.CommissionStatus) (*domain.Commission, error)
	ApplyEarningsDeltas(ctx context.Context, deltas repoargs.EarningsDeltas) error
	CreatePayout(ctx context.Context, affiliateID int64, amount decimal.Decimal) (*domain.Payout, error)
}

// RatesProvider отдает снимок таблицы курсов на момент операции.
type RatesProvider interface {
	Snapshot(ctx context.Context) (currency.Table, error)
}

// Notifier внешний коллаборатор доставки уведомлений (email/sms). Вызывается
// только после коммита транзакции, его ошибки логируются и не влияют на леджер.
type Notifier interface {
	Notify(ctx context.Context, userID int64, template string, payload map[string]any) error
}
