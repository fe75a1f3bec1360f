package domain

import "github.com/shopspring/decimal"

// MoneyScale кол-во знаков после запятой для всех денежных сумм.
const MoneyScale int32 = 2

// ValidateAmount проверяет, что сумма строго положительна и не содержит больше MoneyScale знаков после запятой.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError(field, "must be positive")
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return NewValidationError(field, "must have at most 2 fraction digits")
	}
	return nil
}

// ToMinorUnits переводит сумму в минимальные единицы валюты (центы).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(MoneyScale).Round(0).IntPart()
}
