package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gatehouse.dev/internal/ids"
)

func (in *RegisterInput) normalize() {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.MiddleName = strings.TrimSpace(in.MiddleName)
}

func (in RegisterInput) validate() error {
	switch {
	case in.Email == "":
		return requiredField("email")
	case in.Password == "":
		return requiredField("password")
	case in.FirstName == "":
		return requiredField("first_name")
	case in.LastName == "":
		return requiredField("last_name")
	}
	if !strings.Contains(in.Email, "@") {
		return invalidField("email", "email is malformed")
	}
	return validatePassword("password", in.Password)
}

// Register creates an active account with no roles attached.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	var user User
	err = s.store.InTx(ctx, func(q Queries) error {
		var err error
		user, err = s.register(ctx, q, in, hash)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// SignUp registers an account after checking the password confirmation and
// attaches the default "user" role when it exists.
func (s *Service) SignUp(ctx context.Context, in RegisterInput) (User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return User{}, err
	}
	if in.Password != in.PasswordConfirm {
		return User{}, ErrPasswordMismatch
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	var user User
	err = s.store.InTx(ctx, func(q Queries) error {
		var err error
		user, err = s.register(ctx, q, in, hash)
		if err != nil {
			return err
		}
		role, err := q.RoleByName(ctx, RoleUser)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("default role: %w", err)
		}
		return q.AttachRole(ctx, user.ID, role.ID)
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("account registered", zap.String("user_id", user.ID))
	return user, nil
}

func (s *Service) register(ctx context.Context, q Queries, in RegisterInput, hash string) (User, error) {
	if _, err := q.UserByEmail(ctx, in.Email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}
	now := s.clock()
	user := User{
		ID:           ids.NewAt(now),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		MiddleName:   in.MiddleName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
