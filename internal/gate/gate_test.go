package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

type world struct {
	svc  *auth.Service
	gate *Gate
}

func newWorld(t *testing.T) world {
	t.Helper()
	svc, err := auth.NewService(auth.NewInMemory(), auth.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return world{svc: svc, gate: New(svc)}
}

func (w world) user(t *testing.T, email string, perms ...[2]string) string {
	t.Helper()
	ctx := context.Background()
	u, err := w.svc.Register(ctx, auth.RegisterInput{Email: email, Password: "secret1", FirstName: "A", LastName: "B"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(perms) > 0 {
		role, err := w.svc.Graph().CreateRole(ctx, "role-"+email, "")
		if err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
		for _, pr := range perms {
			p, err := w.svc.Graph().CreatePermission(ctx, pr[0], pr[1], "")
			if err != nil {
				t.Fatalf("CreatePermission: %v", err)
			}
			if err := w.svc.Graph().AttachPermission(ctx, role.ID, p.ID); err != nil {
				t.Fatalf("AttachPermission: %v", err)
			}
		}
		if err := w.svc.Graph().AttachRole(ctx, u.ID, role.ID); err != nil {
			t.Fatalf("AttachRole: %v", err)
		}
	}
	token, _, err := w.svc.Login(ctx, email, "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return token
}

func TestRunRejectsMissingToken(t *testing.T) {
	w := newWorld(t)
	ran := false
	err := Run(context.Background(), w.gate.Chain(), "", func(context.Context, auth.Principal) error {
		ran = true
		return nil
	})
	if !errors.Is(err, auth.ErrUnauthenticated) || ran {
		t.Fatalf("expected unauthenticated without running op, err=%v ran=%v", err, ran)
	}
}

func TestRunAllowsHolderOfPermission(t *testing.T) {
	w := newWorld(t)
	token := w.user(t, "reader@example.com", [2]string{"articles", "read"})

	chain := w.gate.Chain(auth.PermissionRequirement("articles", "read"))
	var seen auth.Principal
	err := Run(context.Background(), chain, token, func(ctx context.Context, p auth.Principal) error {
		fromCtx, ok := auth.PrincipalFromContext(ctx)
		if !ok || fromCtx.User.ID != p.User.ID {
			t.Fatalf("principal not attached to context")
		}
		seen = p
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen.User.Email != "reader@example.com" {
		t.Fatalf("op ran for %q", seen.User.Email)
	}
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	w := newWorld(t)
	token := w.user(t, "reader@example.com", [2]string{"articles", "read"})
	before := testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:documents:read", "allow")) +
		testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:documents:read", "missing_permission"))

	chain := w.gate.Chain(auth.RoleRequirement("admin"), auth.PermissionRequirement("documents", "read"))
	_, err := chain.Evaluate(context.Background(), token)
	rej, ok := auth.AsRejection(err)
	if !ok || !errors.Is(err, auth.ErrMissingRole) || rej.Role != "admin" {
		t.Fatalf("expected missing role admin, got %v", err)
	}
	after := testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:documents:read", "allow")) +
		testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:documents:read", "missing_permission"))
	if after != before {
		t.Fatalf("guard after the failing one was evaluated")
	}
}

func TestMissingPermissionCarriesPair(t *testing.T) {
	w := newWorld(t)
	token := w.user(t, "reader@example.com", [2]string{"articles", "read"})
	_, err := w.gate.Chain(auth.PermissionRequirement("articles", "delete")).Evaluate(context.Background(), token)
	rej, ok := auth.AsRejection(err)
	if !ok || rej.Resource != "articles" || rej.Action != "delete" || !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("unexpected rejection %v", err)
	}
}

func TestRequireWithoutAuthentication(t *testing.T) {
	w := newWorld(t)
	chain := NewChain(w.gate.Require(auth.RoleRequirement("admin")))
	if _, err := chain.Evaluate(context.Background(), "anything"); !errors.Is(err, auth.ErrSessionInvalid) {
		t.Fatalf("expected session invalid, got %v", err)
	}
}

func TestCustomGuardOrder(t *testing.T) {
	var order []string
	mark := func(name string, fail bool) Guard {
		return GuardFunc{Label: name, Fn: func(context.Context, *Request) error {
			order = append(order, name)
			if fail {
				return errors.New("stop")
			}
			return nil
		}}
	}
	chain := NewChain(mark("a", false)).With(mark("b", true), mark("c", false))
	if _, err := chain.Evaluate(context.Background(), ""); err == nil {
		t.Fatalf("expected failure")
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
	if got := testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("b", "error")); got < 1 {
		t.Fatalf("error outcome not counted")
	}
}

func TestRequireAsReportsFixedLabel(t *testing.T) {
	w := newWorld(t)
	token := w.user(t, "reader@example.com", [2]string{"articles", "read"})
	before := testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:resources:read", "allow"))

	chain := NewChain(w.gate.Authenticated(), w.gate.RequireAs("perm:resources:read", auth.PermissionRequirement("articles", "read")))
	if _, err := chain.Evaluate(context.Background(), token); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := testutil.ToFloat64(obs.AccessDecisions.WithLabelValues("perm:resources:read", "allow")); got != before+1 {
		t.Fatalf("expected allow under fixed label, got %v", got-before)
	}
}
