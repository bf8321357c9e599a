package repoargs

import "github.com/shopspring/decimal"

// LedgerDeltas знаковые приращения денежных полей юзера, применяемые одним
// атомарным UPDATE. Суммы должны быть заранее округлены до 2 знаков
// (domain.RoundMoney) - репозиторий их не трогает.
type LedgerDeltas struct {
	UserID       int64
	Balance      decimal.Decimal
	BalanceUSD   decimal.Decimal
	TotalDeposit decimal.Decimal
	TotalSpent   decimal.Decimal
	// ClampToZero для админских корректировок: вместо отказа при уходе баланса
	// в минус, баланс прижимается к нулю. Списания по заказам этот режим
	// использовать не должны.
	ClampToZero bool
}
