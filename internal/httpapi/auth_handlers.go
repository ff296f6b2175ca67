package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"gatehouse.dev/internal/auth"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	MiddleName      string `json:"middle_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      auth.UserDetail `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.SignUp(r.Context(), auth.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		MiddleName:      req.MiddleName,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "auth.register", map[string]any{"user_id": user.ID, "email": user.Email})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration successful",
		"user":    user,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	token, p, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if auth.KindOf(err) != nil {
			a.auditEvent(r, "auth.login_failed", map[string]any{"email": req.Email, "reason": reasonOf(err)})
		}
		a.fail(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), p)
	r = r.WithContext(ctx)

	detail, err := a.svc.Profile(ctx, p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.setSessionCookie(w, token, p.Session.ExpiresAt)
	a.auditEvent(r, "auth.login", map[string]any{"session_id": p.Session.ID})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: p.Session.ExpiresAt,
		User:      detail,
	})
}

// handleLogout revokes the carried token, if any, and always clears the cookie.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := a.requestToken(r); token != "" {
		if err := a.svc.Logout(r.Context(), token); err != nil {
			a.log.Warn("logout failed", zap.Error(err))
			a.fail(w, r, err)
			return
		}
		a.auditEvent(r, "auth.logout", nil)
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func reasonOf(err error) string {
	if rej, ok := auth.AsRejection(err); ok {
		return rej.Reason
	}
	return ""
}
