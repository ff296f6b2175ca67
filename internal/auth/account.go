package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gatehouse.dev/internal/obs"
)

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords are indistinguishable; disabled accounts are refused before the
// password is checked.
func (s *Service) Login(ctx context.Context, email, password string) (string, Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", Principal{}, requiredField("email")
	}
	if password == "" {
		return "", Principal{}, requiredField("password")
	}

	var user User
	err := s.store.View(ctx, func(q Queries) error {
		var err error
		user, err = q.UserByEmail(ctx, email)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		// Burn a comparison so unknown emails cost as much as wrong passwords.
		s.hasher.Verify(s.dummyHash(), password)
		obs.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return "", Principal{}, ErrInvalidCredentials
	case err != nil:
		return "", Principal{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.CanAuthenticate() {
		obs.LoginAttempts.WithLabelValues("account_disabled").Inc()
		return "", Principal{}, ErrAccountDisabled
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		obs.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return "", Principal{}, ErrInvalidCredentials
	}

	rehash := ""
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if h, err := s.hasher.Hash(password); err == nil {
			rehash = h
		} else {
			s.log.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	var (
		token string
		sess  Session
	)
	err = s.store.InTx(ctx, func(q Queries) error {
		if rehash != "" {
			current, err := q.UserByID(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("reload user: %w", err)
			}
			current.PasswordHash = rehash
			current.UpdatedAt = s.clock()
			if err := q.UpdateUser(ctx, current); err != nil {
				return fmt.Errorf("upgrade password hash: %w", err)
			}
			user = current
		}
		var err error
		token, sess, err = s.sessions.issue(ctx, q, user.ID)
		return err
	})
	if err != nil {
		return "", Principal{}, err
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	s.log.Info("login", zap.String("user_id", user.ID), zap.String("session_id", sess.ID), zap.Bool("rehashed", rehash != ""))
	return token, Principal{User: user, Session: sess}, nil
}

func (s *Service) dummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummy, _ = s.hasher.Hash("gatehouse-timing-equaliser")
	})
	return s.dummy
}

// Logout revokes the session carrying token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ChangePassword replaces the password after checking the current one and
// revokes every other session of the user.
func (s *Service) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return requiredField("old_password")
	}
	var user User
	err := s.store.View(ctx, func(q Queries) error {
		var err error
		user, err = q.UserByID(ctx, p.User.ID)
		return err
	})
	if err != nil {
		return storeErr(err, "user", "")
	}
	if !s.hasher.Verify(user.PasswordHash, oldPassword) {
		return ErrWrongOldPassword
	}
	if err := validatePassword("new_password", newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.store.InTx(ctx, func(q Queries) error {
		current, err := q.UserByID(ctx, user.ID)
		if err != nil {
			return storeErr(err, "user", "")
		}
		current.PasswordHash = hash
		current.UpdatedAt = s.clock()
		if err := q.UpdateUser(ctx, current); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return s.sessions.revokeAll(ctx, q, current.ID, p.Session.TokenHash)
	})
	if err != nil {
		return err
	}
	s.log.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// DeactivateAccount soft-deletes the principal's account and revokes all of
// its sessions.
func (s *Service) DeactivateAccount(ctx context.Context, p Principal) error {
	err := s.store.InTx(ctx, func(q Queries) error {
		user, err := liveUser(ctx, q, p.User.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		user.Active = false
		user.DeletedAt = &now
		user.UpdatedAt = now
		if err := q.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		return s.sessions.revokeAll(ctx, q, user.ID, "")
	})
	if err != nil {
		return err
	}
	s.log.Info("account deactivated", zap.String("user_id", p.User.ID))
	return nil
}

// Profile returns the principal's account with roles and granted permissions.
func (s *Service) Profile(ctx context.Context, p Principal) (UserDetail, error) {
	return s.graph.GetUser(ctx, p.User.ID)
}

// UpdateProfile changes names and email. Email stays unique among live accounts.
func (s *Service) UpdateProfile(ctx context.Context, p Principal, upd ProfileUpdate) (User, error) {
	var out User
	err := s.store.InTx(ctx, func(q Queries) error {
		user, err := liveUser(ctx, q, p.User.ID)
		if err != nil {
			return err
		}
		if upd.FirstName != nil {
			if v := strings.TrimSpace(*upd.FirstName); v != "" {
				user.FirstName = v
			}
		}
		if upd.LastName != nil {
			if v := strings.TrimSpace(*upd.LastName); v != "" {
				user.LastName = v
			}
		}
		if upd.MiddleName != nil {
			user.MiddleName = strings.TrimSpace(*upd.MiddleName)
		}
		if upd.Email != nil {
			email := strings.TrimSpace(*upd.Email)
			if email != "" && email != user.Email {
				if !strings.Contains(email, "@") {
					return invalidField("email", "email is malformed")
				}
				other, err := q.UserByEmail(ctx, email)
				if err == nil && other.ID != user.ID {
					return ErrDuplicateEmail
				}
				if err != nil && !errors.Is(err, ErrNotFound) {
					return fmt.Errorf("lookup email: %w", err)
				}
				user.Email = email
			}
		}
		user.UpdatedAt = s.clock()
		if err := q.UpdateUser(ctx, user); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("update profile: %w", err)
		}
		out = user
		return nil
	})
	return out, err
}
