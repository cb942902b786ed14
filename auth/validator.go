package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateClaims rejects tokens whose payload is well signed but unusable.
func ValidateClaims(claims *CustomClaims) error {
	return validate.Struct(claims)
}
