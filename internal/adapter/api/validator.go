package api

import (
	"github.com/labstack/echo/v4"

	"servicehub/pkg/utils"
)

// CustomValidator lets echo's c.Validate use the shared validator.
type CustomValidator struct{}

func NewValidator() echo.Validator {
	return &CustomValidator{}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return utils.ValidateStruct(i)
}
