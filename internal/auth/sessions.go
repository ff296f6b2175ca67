package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
)

const tokenBytes = 32

// SessionManager issues, resolves and revokes opaque session tokens.
type SessionManager struct {
	store Store
	now   func() time.Time
	ttl   time.Duration
	log   *zap.Logger
}

// TTL is the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a session for userID and returns its bearer token.
func (m *SessionManager) Issue(ctx context.Context, userID string) (string, Session, error) {
	var (
		token string
		sess  Session
	)
	err := m.store.InTx(ctx, func(q Queries) error {
		var err error
		token, sess, err = m.issue(ctx, q, userID)
		return err
	})
	if err != nil {
		return "", Session{}, err
	}
	return token, sess, nil
}

func (m *SessionManager) issue(ctx context.Context, q Queries, userID string) (string, Session, error) {
	token, err := newToken()
	if err != nil {
		return "", Session{}, err
	}
	now := m.now()
	sess := Session{
		ID:        ids.NewAt(now),
		UserID:    userID,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Active:    true,
	}
	if err := q.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", Session{}, unknown("user")
		}
		return "", Session{}, fmt.Errorf("create session: %w", err)
	}
	obs.SessionEvents.WithLabelValues("issued").Inc()
	return token, sess, nil
}

// Resolve returns the owner and session of a live token. Absent, revoked and
// expired tokens as well as disabled owners all yield ErrSessionInvalid. An
// expired session is deactivated as part of the lookup.
func (m *SessionManager) Resolve(ctx context.Context, token string) (User, Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, Session{}, ErrSessionInvalid
	}
	var (
		user    User
		sess    Session
		expired bool
	)
	err := m.store.InTx(ctx, func(q Queries) error {
		var err error
		sess, err = q.ActiveSessionByHash(ctx, HashToken(token))
		if errors.Is(err, ErrNotFound) {
			return ErrSessionInvalid
		}
		if err != nil {
			return fmt.Errorf("lookup session: %w", err)
		}
		if sess.ExpiredAt(m.now()) {
			expired = true
			// Commit the deactivation; the caller still sees a rejection.
			return q.DeactivateSession(ctx, sess.ID)
		}
		user, err = q.UserByID(ctx, sess.UserID)
		if errors.Is(err, ErrNotFound) {
			return ErrSessionInvalid
		}
		if err != nil {
			return fmt.Errorf("lookup session owner: %w", err)
		}
		if !user.CanAuthenticate() {
			return ErrSessionInvalid
		}
		return nil
	})
	if err != nil {
		return User{}, Session{}, err
	}
	if expired {
		obs.SessionEvents.WithLabelValues("expired").Inc()
		m.log.Debug("session expired", zap.String("session_id", sess.ID), zap.String("user_id", sess.UserID))
		return User{}, Session{}, ErrSessionInvalid
	}
	return user, sess, nil
}

// Revoke deactivates the session carrying token. Unknown tokens are ignored.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	revoked := false
	err := m.store.InTx(ctx, func(q Queries) error {
		sess, err := q.ActiveSessionByHash(ctx, HashToken(token))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup session: %w", err)
		}
		revoked = true
		return q.DeactivateSession(ctx, sess.ID)
	})
	if err != nil {
		return err
	}
	if revoked {
		obs.SessionEvents.WithLabelValues("revoked").Inc()
	}
	return nil
}

// RevokeAll deactivates every session of userID except the one carrying
// exceptToken, when given.
func (m *SessionManager) RevokeAll(ctx context.Context, userID, exceptToken string) error {
	except := ""
	if exceptToken = strings.TrimSpace(exceptToken); exceptToken != "" {
		except = HashToken(exceptToken)
	}
	return m.store.InTx(ctx, func(q Queries) error {
		return m.revokeAll(ctx, q, userID, except)
	})
}

func (m *SessionManager) revokeAll(ctx context.Context, q Queries, userID, exceptHash string) error {
	n, err := q.DeactivateUserSessions(ctx, userID, exceptHash)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	obs.SessionEvents.WithLabelValues("revoked").Add(float64(n))
	return nil
}

// ListActive returns the live sessions of userID, oldest first.
func (m *SessionManager) ListActive(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	err := m.store.View(ctx, func(q Queries) error {
		var err error
		out, err = q.ListActiveSessions(ctx, userID, m.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Reap deactivates every active session past its expiry and returns how many.
func (m *SessionManager) Reap(ctx context.Context) (int64, error) {
	var n int64
	err := m.store.InTx(ctx, func(q Queries) error {
		var err error
		n, err = q.DeactivateExpiredSessions(ctx, m.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	obs.SessionEvents.WithLabelValues("reaped").Add(float64(n))
	return n, nil
}
