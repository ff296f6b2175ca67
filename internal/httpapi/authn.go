package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/gate"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// principalHandler serves a request whose guards have all allowed it.
type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// guarded runs chain over the request token before h. The principal is also
// attached to the request context for audit entries.
func (a *API) guarded(chain gate.Chain, h principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := gate.Run(r.Context(), chain, a.requestToken(r), func(ctx context.Context, p auth.Principal) error {
			h(w, r.WithContext(ctx), p)
			return nil
		})
		if err != nil {
			a.fail(w, r, err)
		}
	})
}

// requestToken prefers the Authorization header over the session cookie.
func (a *API) requestToken(r *http.Request) string {
	if token, ok := extractBearerToken(r.Header.Get(authHeader)); ok {
		return token
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
