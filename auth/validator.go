package auth

import (
	"fmt"

	chaterrors "chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SignupRequest holds the fields a signup must carry. The relay is
// deliberately permissive about password strength: credentials gate
// access to rooms, not to anything sensitive, and the wire protocol
// predates any complexity policy.
type SignupRequest struct {
	Username string `validate:"required,min=1,max=64"`
	Password string `validate:"required,min=1,max=72"`
}

func ValidateSignup(req SignupRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrInvalidSignup, err)
	}
	return nil
}
