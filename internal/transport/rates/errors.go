package rates

import (
	"errors"
	"fmt"
)

// ErrNoRates источник никогда не отвечал и локальной копии курсов нет.
var ErrNoRates = errors.New("no rates available")

type StatusCodeError struct {
	Code int
}

func NewStatusCodeError(code int) *StatusCodeError {
	return &StatusCodeError{Code: code}
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("Unexpected status code %d", e.Code)
}
