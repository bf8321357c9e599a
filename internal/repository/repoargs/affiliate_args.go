package repoargs

import "github.com/shopspring/decimal"

type CreateCommission struct {
	AffiliateID      int64
	OrderID          int64
	OrderAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
}

// EarningsDeltas знаковые приращения заработка аффилиата, применяемые одним
// атомарным UPDATE. Уход available_earnings в минус отклоняется на уровне SQL.
type EarningsDeltas struct {
	AffiliateID       int64
	TotalEarnings     decimal.Decimal
	AvailableEarnings decimal.Decimal
}
