// Package currency конвертирует денежные суммы через таблицу курсов с USD в
// качестве базовой валюты.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
)

const USD = "USD"

// Rate курс валюты: сколько единиц валюты Code дают за 1 USD.
type Rate struct {
	Code string
	Rate decimal.Decimal
}

// Table снимок таблицы курсов на момент операции. Ключ - код валюты в верхнем
// регистре. USD всегда закреплен на 1.0.
type Table map[string]decimal.Decimal

// NewTable строит таблицу из среза курсов. Нулевые и отрицательные курсы
// отбрасываются, USD принудительно выставляется в 1.
func NewTable(rates []Rate) Table {
	t := make(Table, len(rates)+1)
	for _, r := range rates {
		if r.Rate.IsPositive() {
			t[strings.ToUpper(r.Code)] = r.Rate
		}
	}
	t[USD] = decimal.NewFromInt(1)
	return t
}

func (t Table) rate(code string) (decimal.Decimal, bool) {
	r, ok := t[strings.ToUpper(code)]
	return r, ok
}

// Convert переводит amount из валюты from в валюту to. Конвертация между двумя
// не-USD валютами идет через USD как промежуточную.
//
// Если какой-либо из курсов отсутствует в таблице, функция НЕ возвращает ноль:
// возвращается исходная сумма вместе с ошибкой domain.ErrMissingRate.
// Вызывающая сторона обязана залогировать это как проблему конфигурации.
// Результат не округляется, округление - забота точки коммита.
func Convert(amount decimal.Decimal, from, to string, table Table) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)

	if from == to {
		return amount, nil
	}

	fromRate, fromOK := table.rate(from)
	toRate, toOK := table.rate(to)

	switch {
	case from == USD:
		if !toOK {
			return amount, missingRateErr(to)
		}
		return amount.Mul(toRate), nil
	case to == USD:
		if !fromOK {
			return amount, missingRateErr(from)
		}
		return amount.Div(fromRate), nil
	default:
		if !fromOK {
			return amount, missingRateErr(from)
		}
		if !toOK {
			return amount, missingRateErr(to)
		}
		return amount.Div(fromRate).Mul(toRate), nil
	}
}

func missingRateErr(code string) error {
	return fmt.Errorf("converting currency `%s`: %w", code, domain.ErrMissingRate)
}
