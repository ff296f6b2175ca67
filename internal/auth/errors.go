package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of rejection. Every expected failure of the package unwraps to one of these.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Named rejections. Compare with errors.Is; details such as the field are ignored.
var (
	ErrInvalidCredentials = &Rejection{Kind: ErrUnauthenticated, Reason: "invalid_credentials", Message: "invalid email or password"}
	ErrSessionInvalid     = &Rejection{Kind: ErrUnauthenticated, Reason: "session_invalid", Message: "authentication required"}
	ErrWrongOldPassword   = &Rejection{Kind: ErrUnauthenticated, Reason: "wrong_old_password", Message: "current password is incorrect"}
	ErrAccountDisabled    = &Rejection{Kind: ErrForbidden, Reason: "account_disabled", Message: "account is disabled"}
	ErrProtectedRole      = &Rejection{Kind: ErrForbidden, Reason: "protected_role", Message: "system role cannot be modified"}
	ErrLastAdminRole      = &Rejection{Kind: ErrForbidden, Reason: "last_admin_role", Message: "cannot remove your last administrative role"}
	ErrMissingRole        = &Rejection{Kind: ErrForbidden, Reason: "missing_role", Message: "role required"}
	ErrMissingPermission  = &Rejection{Kind: ErrForbidden, Reason: "missing_permission", Message: "permission required"}
	ErrWeakPassword       = &Rejection{Kind: ErrInvalidInput, Reason: "weak_password", Field: "password", Message: "password must be at least 6 characters"}
	ErrPasswordMismatch   = &Rejection{Kind: ErrInvalidInput, Reason: "password_mismatch", Field: "password_confirm", Message: "passwords do not match"}
	ErrRequiredField      = &Rejection{Kind: ErrInvalidInput, Reason: "required_field", Message: "field is required"}
	ErrDuplicateEmail     = &Rejection{Kind: ErrConflict, Reason: "duplicate_email", Field: "email", Message: "email is already in use"}
	ErrDuplicate          = &Rejection{Kind: ErrConflict, Reason: "duplicate", Message: "already exists"}
	ErrUnknownEntity      = &Rejection{Kind: ErrNotFound, Reason: "unknown_entity", Message: "not found"}
)

// Rejection is a typed, recoverable refusal. It carries enough structure for a
// transport to render a precise message without the core owning presentation.
type Rejection struct {
	Kind     error
	Reason   string
	Message  string
	Field    string
	Entity   string
	Role     string
	Resource string
	Action   string
}

func (r *Rejection) Error() string {
	var b strings.Builder
	b.WriteString(r.Kind.Error())
	if r.Message != "" {
		b.WriteString(": ")
		b.WriteString(r.Message)
	}
	switch {
	case r.Role != "":
		fmt.Fprintf(&b, " (role %s)", r.Role)
	case r.Resource != "":
		fmt.Fprintf(&b, " (%s:%s)", r.Resource, r.Action)
	case r.Field != "":
		fmt.Fprintf(&b, " (field %s)", r.Field)
	case r.Entity != "":
		fmt.Fprintf(&b, " (%s)", r.Entity)
	}
	return b.String()
}

func (r *Rejection) Unwrap() error { return r.Kind }

// Is matches another rejection with the same kind and reason.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return t.Kind == r.Kind && t.Reason == r.Reason
}

func (r *Rejection) with(mut func(*Rejection)) *Rejection {
	cp := *r
	mut(&cp)
	return &cp
}

func requiredField(field string) error {
	return ErrRequiredField.with(func(r *Rejection) {
		r.Field = field
		r.Message = field + " is required"
	})
}

// Required reports that an input field is missing.
func Required(field string) error { return requiredField(field) }

// Mismatch reports that a confirmation field differs from what it confirms.
func Mismatch(field string) error {
	return ErrPasswordMismatch.with(func(r *Rejection) { r.Field = field })
}

// Malformed reports an input that could not be decoded.
func Malformed(msg string) error {
	return &Rejection{Kind: ErrInvalidInput, Reason: "malformed_input", Message: msg}
}

func invalidField(field, msg string) error {
	return &Rejection{Kind: ErrInvalidInput, Reason: "invalid_field", Field: field, Message: msg}
}

func weakPassword(field string) error {
	return ErrWeakPassword.with(func(r *Rejection) { r.Field = field })
}

func duplicate(entity, msg string) error {
	return ErrDuplicate.with(func(r *Rejection) {
		r.Entity = entity
		r.Message = msg
	})
}

func unknown(entity string) error {
	return ErrUnknownEntity.with(func(r *Rejection) {
		r.Entity = entity
		r.Message = entity + " not found"
	})
}

func missingRole(role string) error {
	return ErrMissingRole.with(func(r *Rejection) {
		r.Role = role
		r.Message = "role " + role + " required"
	})
}

func missingPermission(resource, action string) error {
	return ErrMissingPermission.with(func(r *Rejection) {
		r.Resource = resource
		r.Action = action
		r.Message = fmt.Sprintf("insufficient rights to %s %s", action, resource)
	})
}

// AsRejection extracts the rejection carried by err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// KindOf returns the rejection kind of err, or nil for unexpected failures
// such as an unreachable store.
func KindOf(err error) error {
	for _, kind := range []error{ErrUnauthenticated, ErrForbidden, ErrConflict, ErrNotFound, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
