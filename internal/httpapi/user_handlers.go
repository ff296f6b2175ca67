package httpapi

import (
	"net/http"

	"gatehouse.dev/internal/auth"
)

type updateProfileRequest struct {
	Email      *string `json:"email"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	MiddleName *string `json:"middle_name"`
}

type changePasswordRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

type sessionView struct {
	auth.Session
	Current bool `json:"current"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	detail, err := a.svc.Profile(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.UpdateProfile(r.Context(), p, auth.ProfileUpdate{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		MiddleName: req.MiddleName,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "user.profile_update", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "profile updated",
		"user":    user,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.NewPassword != req.NewPasswordConfirm {
		a.fail(w, r, auth.Mismatch("new_password_confirm"))
		return
	}
	if err := a.svc.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "user.password_change", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "password changed"})
}

// handleDeactivate soft-deletes the caller; every session, including this one, ends.
func (a *API) handleDeactivate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if err := a.svc.DeactivateAccount(r.Context(), p); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "user.deactivate", nil)
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "account deactivated"})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	sessions, err := a.svc.Sessions().ListActive(r.Context(), p.User.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{Session: s, Current: s.ID == p.Session.ID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}
