package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct validates request bodies against their struct tags and
// flattens the failures into one readable error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var problems []string
	for _, fieldErr := range err.(validator.ValidationErrors) {
		field := strings.ToLower(fieldErr.Field())
		param := fieldErr.Param()

		switch fieldErr.Tag() {
		case "required":
			problems = append(problems, field+" is required")
		case "min":
			problems = append(problems, field+" must be at least "+param)
		case "max":
			problems = append(problems, field+" must be at most "+param)
		case "email":
			problems = append(problems, field+" must be a valid email")
		default:
			problems = append(problems, field+" is invalid")
		}
	}

	return errors.New(strings.Join(problems, ", "))
}
