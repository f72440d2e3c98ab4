package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/face-attendance/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report form field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("segment", validateSegment); err != nil {
		panic(fmt.Sprintf("registering segment validation: %v", err))
	}
	if err := v.RegisterValidation("tenant", validateTenant); err != nil {
		panic(fmt.Sprintf("registering tenant validation: %v", err))
	}
	return v
}

// validateSegment accepts ids the store can use as a directory or file name part.
func validateSegment(fl validator.FieldLevel) bool {
	return store.ValidateID(fl.Field().String()) == nil
}

// validateTenant accepts exactly the tenants the store accepts.
func validateTenant(fl validator.FieldLevel) bool {
	_, err := store.NormalizeTenant(fl.Field().String())
	return err == nil
}

// validationMessage turns validator errors into a short client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "tenant":
			msgs = append(msgs, "invalid or missing "+fe.Field())
		case "segment":
			msgs = append(msgs, fe.Field()+" must not contain path separators")
		case "max", "min", "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
