package common

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

type GenericEchoValidator struct {
	Validator *validator.Validate
}

// NewGenericEchoValidator builds the validator once; Validate is then safe for concurrent use
func NewGenericEchoValidator() *GenericEchoValidator {
	return &GenericEchoValidator{Validator: newValidator()}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, describeValidationError(err))
	}
	return nil
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describeValidationError lists the offending fields as "field: rule" pairs
func describeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Sprintf("received invalid request body: %v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), rule))
	}
	return "received invalid request body: " + strings.Join(parts, ", ")
}
