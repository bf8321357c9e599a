package domain

import (
	"github.com/shopspring/decimal"

	"time"
)

// User несет на себе поля леджера. Денежные поля мутируются только репозиторием
// пользователей внутри транзакции БД.
type User struct {
	ID           int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Username     string
	Currency     string
	DollarRate   decimal.Decimal
	Balance      decimal.Decimal
	BalanceUSD   decimal.Decimal
	TotalDeposit decimal.Decimal
	TotalSpent   decimal.Decimal
	// ID аффилиата-реферера, если юзер пришел по реферальной ссылке.
	ReferredBy *int64
}

type Order struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    int64
	ServiceID int64
	Qty       int64
	Remains   int64
	Charge    decimal.Decimal
	ChargeUSD decimal.Decimal
	Currency  string
	Status    OrderStatus
}

// Transaction запись в журнале движения денег. Никогда не удаляется.
// InvoiceID уникален; для синтетических записей (возвраты, переводы)
// составляется с префиксом операции.
type Transaction struct {
	ID            int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	InvoiceID     string
	UserID        int64
	OrderID       *int64
	Amount        decimal.Decimal
	AmountUSD     decimal.Decimal
	Currency      string
	Status        TransactionStatus
	AdminStatus   AdminStatus
	Method        string
	ExternalTxnID string
	Fee           decimal.Decimal
	SenderNumber  string
	PayerName     string
	ChargedAmount decimal.Decimal
}

type Affiliate struct {
	ID                int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	UserID            int64
	ReferralCode      string
	CommissionRate    decimal.Decimal
	TotalEarnings     decimal.Decimal
	AvailableEarnings decimal.Decimal
}

type Commission struct {
	ID               int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AffiliateID      int64
	OrderID          int64
	OrderAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	Status           CommissionStatus
}

type Payout struct {
	ID          int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AffiliateID int64
	Amount      decimal.Decimal
	Status      PayoutStatus
}
