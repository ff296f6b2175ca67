package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gatehouse.dev/internal/auth"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{auth.ErrSessionInvalid, http.StatusUnauthorized},
		{auth.ErrWrongOldPassword, http.StatusUnauthorized},
		{auth.ErrAccountDisabled, http.StatusForbidden},
		{auth.ErrLastAdminRole, http.StatusForbidden},
		{auth.ErrDuplicateEmail, http.StatusConflict},
		{auth.ErrUnknownEntity, http.StatusNotFound},
		{auth.Required("email"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", auth.ErrMissingPermission), http.StatusForbidden},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), "error %v", tc.err)
	}
}

func TestFailHidesUnexpectedErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	a := &API{log: zap.New(core)}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	a.fail(rr, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "internal error", body["error"])
	require.NotContains(t, body, "kind")
	require.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestFailRendersRejectionDetails(t *testing.T) {
	a := &API{log: zap.NewNop()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/resources/reports", nil)

	a.fail(rr, req, auth.ErrMissingRole)

	require.Equal(t, http.StatusForbidden, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "forbidden", body["kind"])
	require.Equal(t, "missing_role", body["reason"])
	require.Empty(t, rr.Header().Get("WWW-Authenticate"))
}
