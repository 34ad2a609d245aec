package types

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce    sync.Once
	structValidator *validator.Validate
)

// ValidateStruct runs the `validate` struct tags of s with the shared validator
func ValidateStruct(s any) error {
	validateOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValidator.Struct(s)
}
