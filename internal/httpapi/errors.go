package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"gatehouse.dev/internal/auth"
)

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody(r, msg))
}

func errorBody(r *http.Request, msg string) map[string]any {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	return payload
}

// statusFor maps a rejection kind to its HTTP status.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.ErrUnauthenticated:
		return http.StatusUnauthorized
	case auth.ErrForbidden:
		return http.StatusForbidden
	case auth.ErrConflict:
		return http.StatusConflict
	case auth.ErrNotFound:
		return http.StatusNotFound
	case auth.ErrInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err. Rejections carry their details; anything else is logged
// and reported as an internal error.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	rej, ok := auth.AsRejection(err)
	if !ok {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		a.log.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, statusFor(err), "internal error")
		return
	}

	code := statusFor(err)
	body := errorBody(r, rej.Message)
	body["kind"] = rej.Kind.Error()
	body["reason"] = rej.Reason
	for k, v := range map[string]string{
		"field":    rej.Field,
		"entity":   rej.Entity,
		"role":     rej.Role,
		"resource": rej.Resource,
		"action":   rej.Action,
	} {
		if v != "" {
			body[k] = v
		}
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="`+serviceName+`"`)
	}
	writeJSON(w, code, body)
}
