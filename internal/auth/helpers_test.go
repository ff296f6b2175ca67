package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	store *InMemory
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...ServiceOption) fixture {
	t.Helper()
	store := NewInMemory()
	clock := newFakeClock()
	base := []ServiceOption{WithClock(clock.Now), WithHasher(BcryptHasher{Cost: bcrypt.MinCost})}
	svc, err := NewService(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return fixture{svc: svc, store: store, clock: clock}
}

func (f fixture) register(t *testing.T, email string, roles ...string) User {
	t.Helper()
	ctx := context.Background()
	u, err := f.svc.Register(ctx, RegisterInput{Email: email, Password: "secret123", FirstName: "Test", LastName: "User"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	for _, name := range roles {
		role := f.role(t, name)
		if err := f.svc.Graph().AttachRole(ctx, u.ID, role.ID); err != nil {
			t.Fatalf("attach %s: %v", name, err)
		}
	}
	return u
}

// role returns the role named name, creating it when absent.
func (f fixture) role(t *testing.T, name string) Role {
	t.Helper()
	ctx := context.Background()
	var found Role
	err := f.store.View(ctx, func(q Queries) error {
		var err error
		found, err = q.RoleByName(ctx, name)
		return err
	})
	if err == nil {
		return found
	}
	r, err := f.svc.Graph().CreateRole(ctx, name, "")
	if err != nil {
		t.Fatalf("create role %s: %v", name, err)
	}
	return r
}

func (f fixture) login(t *testing.T, email string) (string, Principal) {
	t.Helper()
	token, p, err := f.svc.Login(context.Background(), email, "secret123")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return token, p
}
