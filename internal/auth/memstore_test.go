package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryRollsBackFailedTx(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(q Queries) error {
		if err := q.CreateRole(ctx, Role{ID: "r1", Name: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	err = store.View(ctx, func(q Queries) error {
		_, err := q.RoleByName(ctx, "ghost")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back role is visible: %v", err)
	}
}

func TestInMemoryViewIsReadOnly(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	err := store.View(ctx, func(q Queries) error {
		return q.CreateRole(ctx, Role{ID: "r1", Name: "x"})
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestInMemoryEmailUniqueAmongLive(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()
	err := store.InTx(ctx, func(q Queries) error {
		if err := q.CreateUser(ctx, User{ID: "u1", Email: "a@x", Active: true}); err != nil {
			return err
		}
		if err := q.CreateUser(ctx, User{ID: "u2", Email: "a@x"}); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		return q.UpdateUser(ctx, User{ID: "u1", Email: "a@x", DeletedAt: &now})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	err = store.InTx(ctx, func(q Queries) error {
		return q.CreateUser(ctx, User{ID: "u2", Email: "a@x", Active: true})
	})
	if err != nil {
		t.Fatalf("email of deleted user should be free: %v", err)
	}
}

func TestConcurrentRegistrationsKeepEmailUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(ctx, RegisterInput{Email: "race@example.com", Password: "secret1", FirstName: "A", LastName: "B"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrDuplicateEmail) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d registrations succeeded, want 1", wins)
	}
}
