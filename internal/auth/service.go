package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSessionTTL = time.Hour

// Protected role names. They can be neither deleted nor renamed.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Service is the entry point of the access-control kernel.
type Service struct {
	store      Store
	hasher     Hasher
	now        func() time.Time
	log        *zap.Logger
	sessionTTL time.Duration
	adminRoles map[string]struct{}

	sessions *SessionManager
	graph    *Graph

	dummyOnce sync.Once
	dummy     string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("auth: session ttl must be positive, got %s", ttl)
		}
		s.sessionTTL = ttl
		return nil
	}
}

// WithHasher replaces the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: nil hasher")
		}
		s.hasher = h
		return nil
	}
}

// WithAdminRoles sets the role names counted as administrative by the
// self-protection rule.
func WithAdminRoles(names ...string) ServiceOption {
	return func(s *Service) error {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				set[n] = struct{}{}
			}
		}
		if len(set) == 0 {
			return errors.New("auth: at least one administrative role is required")
		}
		s.adminRoles = set
		return nil
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: nil store")
	}
	svc := &Service{
		store:      store,
		hasher:     NewBcryptHasher(0),
		now:        time.Now,
		log:        zap.NewNop(),
		sessionTTL: defaultSessionTTL,
		adminRoles: map[string]struct{}{RoleAdmin: {}},
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	svc.sessions = &SessionManager{store: store, now: svc.clock, ttl: svc.sessionTTL, log: svc.log}
	svc.graph = &Graph{store: store, now: svc.clock, adminRoles: svc.adminRoles, log: svc.log}
	return svc, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Graph exposes the permission graph and its administrative mutations.
func (s *Service) Graph() *Graph { return s.graph }

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate resolves a bearer token into a principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	user, sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Session: sess}, nil
}

// Authorize checks one requirement for the principal against the live graph.
func (s *Service) Authorize(ctx context.Context, p Principal, req Requirement) error {
	return req.check(ctx, s.graph, p.User.ID)
}
