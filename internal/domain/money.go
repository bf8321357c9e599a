package domain

import "github.com/shopspring/decimal"

// moneyScale все персистентные денежные значения хранятся с двумя знаками после запятой.
const moneyScale = 2

// RoundMoney округляет сумму до двух знаков. Применяется только в точке коммита
// или отображения, промежуточные вычисления остаются полной точности.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(moneyScale)
}
