package domain

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusPartial    OrderStatus = "partial"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// IsTerminal сообщает, финализирован ли заказ. Финализированный заказ
// повторно не обрабатывается.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// IsValid проверяет что статус принадлежит закрытому перечислению.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusPartial, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusSuspicious TransactionStatus = "suspicious"
)

// IsTerminal для транзакции терминальным считается любой статус кроме processing.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusProcessing
}

// AdminStatus отдельное от платежного статуса состояние ручной проверки.
type AdminStatus string

const (
	AdminStatusPending  AdminStatus = "pending"
	AdminStatusApproved AdminStatus = "approved"
	AdminStatusRejected AdminStatus = "rejected"
)

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusCancelled CommissionStatus = "cancelled"
	CommissionStatusRejected  CommissionStatus = "rejected"
)

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// RefundKind тип возврата по заказу.
type RefundKind string

const (
	RefundFull    RefundKind = "full"
	RefundPartial RefundKind = "partial"
)
