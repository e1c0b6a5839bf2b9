package validator

import (
	"reflect"
	"strings"

	"propdesk/internal/core/domain"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse describes one failed field
type ErrorResponse struct {
	FailedField string `json:"field"`
	Tag         string `json:"tag"`
	Value       string `json:"value,omitempty"`
}

var validate = validator.New()

func init() {
	// Report json names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		return domain.EntityType(fl.Field().String()).Valid()
	})
	validate.RegisterValidation("module", func(fl validator.FieldLevel) bool {
		return domain.Module(fl.Field().String()).Valid()
	})
	validate.RegisterValidation("role_level", func(fl validator.FieldLevel) bool {
		return domain.ValidLevel(int(fl.Field().Int()))
	})
}

// ValidateStruct validates data against its `validate` tags
func ValidateStruct(data interface{}) []*ErrorResponse {
	var errors []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []*ErrorResponse{{FailedField: "", Tag: "invalid"}}
		}
		for _, err := range verrs {
			errors = append(errors, &ErrorResponse{
				FailedField: err.Namespace(),
				Tag:         err.Tag(),
				Value:       err.Param(),
			})
		}
	}
	return errors
}
