package scheduling

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// medicalLicensePattern accepts state-coded registrations such as
// MH/12345/2020 or TN67890/2015.
var medicalLicensePattern = regexp.MustCompile(`^[A-Z]{2,3}/?\d{5,7}/?\d{4}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("medical_license", func(fl validator.FieldLevel) bool {
		return medicalLicensePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct runs the struct's validate tags and reports the first failing
// field as a *ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("request", err.Error())
	}
	fe := fieldErrs[0]
	return invalid(fe.Field(), failureReason(fe))
}

func failureReason(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "number":
		return "must contain only digits"
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "medical_license":
		return "must look like MH/12345/2020 or TN67890/2015"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}
