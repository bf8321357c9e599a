package repoargs

import (
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
)

type CreateOrder struct {
	UserID    int64
	ServiceID int64
	Qty       int64
	Charge    decimal.Decimal
	ChargeUSD decimal.Decimal
	Currency  string
}

// SettlementUpdate новые значения заказа после расчета (partial/refund).
type SettlementUpdate struct {
	ID        int64
	Status    domain.OrderStatus
	Qty       int64
	Remains   int64
	Charge    decimal.Decimal
	ChargeUSD decimal.Decimal
}
