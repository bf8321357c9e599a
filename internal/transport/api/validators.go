package api

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"

	"github.com/go-playground/validator/v10"
)

// validateDecimalGT проверяет что строковое поле парсится как decimal и
// строго больше значения из параметра тега: `binding:"dgt=0"`.
func validateDecimalGT(fl validator.FieldLevel) bool {
	bound, boundErr := decimal.NewFromString(fl.Param())
	if boundErr != nil {
		return false
	}

	str, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	d, err := decimal.NewFromString(str)
	if err != nil {
		return false
	}
	return d.GreaterThan(bound)
}

func registerValidators() error {
	v, _ := binding.Validator.Engine().(*validator.Validate)
	if err := v.RegisterValidation("dgt", validateDecimalGT); err != nil {
		return fmt.Errorf("validator registration: %s", err.Error())
	}
	return nil
}
