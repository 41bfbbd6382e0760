// Package validate wraps go-playground/validator and turns its failures into
// apperror validation errors that the handler layer already knows how to
// render.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/circles/internal/apperror"
)

var v *validator.Validate

// handlePattern accepts domain-style Bluesky handles such as alice.bsky.social.
var handlePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]([a-z0-9-]{0,61}[a-z0-9])?$`)

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bskyhandle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	})
}

// Struct validates s against its `validate` tags. The first failing field is
// reported by its JSON name.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.ValidationFailed(fe.Field(), message(fe))
	}
	return fmt.Errorf("validate: %w", err)
}

// Email checks a single address. Blank input is reported as required.
func Email(field, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if err := v.Var(email, "email,max=254"); err != nil {
		return apperror.ValidationFailed(field, "please provide a valid email address")
	}
	return nil
}

// Handle checks a normalized Bluesky handle.
func Handle(field, handle string) error {
	if err := v.Var(handle, "required,max=253,bskyhandle"); err != nil {
		return apperror.ValidationFailed(field, fmt.Sprintf("%q is not a valid Bluesky handle", handle))
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "please provide a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}
