package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknown        = errors.New("unknown error")

	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientEarnings = errors.New("insufficient earnings")
	ErrAlreadyFinalized     = errors.New("already finalized")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMissingRate          = errors.New("missing currency rate")
)

// AlreadyFinalizedError возвращается при попытке повторной обработки заказа в
// терминальном статусе. Оборачивает ErrAlreadyFinalized, чтоб вызывающая
// сторона могла отличить "нечего делать" от "невалидный запрос".
type AlreadyFinalizedError struct {
	OrderID int64
	Status  OrderStatus
}

func NewAlreadyFinalizedError(orderID int64, status OrderStatus) error {
	return &AlreadyFinalizedError{OrderID: orderID, Status: status}
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("order %d is finalized with status %s", e.OrderID, e.Status)
}

func (e *AlreadyFinalizedError) Unwrap() error {
	return ErrAlreadyFinalized
}
