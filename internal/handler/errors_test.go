package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := map[service.Kind]int{
		service.KindConflict:          http.StatusConflict,
		service.KindNotFound:          http.StatusNotFound,
		service.KindInvalidCredential: http.StatusUnauthorized,
		service.KindInvalidToken:      http.StatusUnauthorized,
		service.KindUnverified:        http.StatusForbidden,
		service.KindInactive:          http.StatusForbidden,
		service.KindRateLimited:       http.StatusTooManyRequests,
		service.KindValidation:        http.StatusBadRequest,
		service.KindUnexpected:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), "kind %s", kind)
	}
}

func record(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/sign-in", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, writeErr(e.NewContext(req, rec), err))
	return rec
}

func TestWriteErrDomainKind(t *testing.T) {
	rec := record(t, service.E(service.KindConflict, "user already exists"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, "user already exists", body["message"])
}

func TestWriteErrRateLimited(t *testing.T) {
	rec := record(t, &service.Error{
		Kind:       service.KindRateLimited,
		Message:    "please wait 42 seconds before requesting a new code",
		RetryAfter: 42,
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["retry_after"])
}

func TestWriteErrOpaqueInternal(t *testing.T) {
	rec := record(t, errors.New("dial tcp 10.0.0.5:3306: connect: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5", "internals must not leak to clients")
}
