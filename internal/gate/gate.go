// Package gate composes authentication and authorization checks into ordered
// chains that run before a protected operation.
package gate

import (
	"context"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

// Authorizer is the part of auth.Service the gate depends on.
type Authorizer interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
	Authorize(ctx context.Context, p auth.Principal, req auth.Requirement) error
}

// Request is the state a chain threads through its guards.
type Request struct {
	Token     string
	Principal auth.Principal
	// Authenticated is set once a guard has resolved Principal.
	Authenticated bool
}

// Guard allows or rejects a request. Guards read the store but never write it.
type Guard interface {
	Name() string
	Check(ctx context.Context, req *Request) error
}

// GuardFunc adapts a function to Guard.
type GuardFunc struct {
	Label string
	Fn    func(ctx context.Context, req *Request) error
}

// Name implements Guard.
func (g GuardFunc) Name() string { return g.Label }

// Check implements Guard.
func (g GuardFunc) Check(ctx context.Context, req *Request) error { return g.Fn(ctx, req) }

// Gate builds chains over one Authorizer.
type Gate struct {
	authz Authorizer
}

// New returns a gate backed by authz.
func New(authz Authorizer) *Gate {
	return &Gate{authz: authz}
}

// Authenticated resolves the request token into a principal.
func (g *Gate) Authenticated() Guard {
	return GuardFunc{Label: "authenticated", Fn: func(ctx context.Context, req *Request) error {
		p, err := g.authz.Authenticate(ctx, req.Token)
		if err != nil {
			return err
		}
		req.Principal = p
		req.Authenticated = true
		return nil
	}}
}

// Require checks one requirement against an authenticated request.
func (g *Gate) Require(r auth.Requirement) Guard {
	return g.RequireAs(r.String(), r)
}

// RequireAs is Require reported under label, for requirements built from
// request input whose rendering would be unbounded as a metric label.
func (g *Gate) RequireAs(label string, r auth.Requirement) Guard {
	return GuardFunc{Label: label, Fn: func(ctx context.Context, req *Request) error {
		if !req.Authenticated {
			return auth.ErrSessionInvalid
		}
		return g.authz.Authorize(ctx, req.Principal, r)
	}}
}

// Chain returns authentication followed by one guard per requirement, in order.
func (g *Gate) Chain(reqs ...auth.Requirement) Chain {
	guards := make([]Guard, 0, len(reqs)+1)
	guards = append(guards, g.Authenticated())
	for _, r := range reqs {
		guards = append(guards, g.Require(r))
	}
	return Chain{guards: guards}
}

// Chain is an ordered list of guards. The zero value allows everything.
type Chain struct {
	guards []Guard
}

// NewChain builds a chain from arbitrary guards.
func NewChain(guards ...Guard) Chain {
	return Chain{guards: append([]Guard(nil), guards...)}
}

// With returns a copy of c with guards appended.
func (c Chain) With(guards ...Guard) Chain {
	out := make([]Guard, 0, len(c.guards)+len(guards))
	out = append(out, c.guards...)
	return Chain{guards: append(out, guards...)}
}

// Evaluate runs guards in order and stops at the first rejection.
func (c Chain) Evaluate(ctx context.Context, token string) (auth.Principal, error) {
	req := &Request{Token: token}
	for _, g := range c.guards {
		if err := g.Check(ctx, req); err != nil {
			obs.AccessDecisions.WithLabelValues(g.Name(), outcome(err)).Inc()
			return auth.Principal{}, err
		}
		obs.AccessDecisions.WithLabelValues(g.Name(), "allow").Inc()
	}
	return req.Principal, nil
}

// Run executes op only when every guard of c allows the token.
func Run(ctx context.Context, c Chain, token string, op func(ctx context.Context, p auth.Principal) error) error {
	p, err := c.Evaluate(ctx, token)
	if err != nil {
		return err
	}
	return op(auth.ContextWithPrincipal(ctx, p), p)
}

func outcome(err error) string {
	if rej, ok := auth.AsRejection(err); ok {
		return rej.Reason
	}
	return "error"
}
