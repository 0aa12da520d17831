package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/model"
)

func runWithGrants(t *testing.T, grants interface{}, action, resource string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if grants != nil {
		c.Set(CtxPermissions, grants)
	}
	h := RequirePermission(action, resource)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec
}

func TestRequirePermissionGranted(t *testing.T) {
	rec := runWithGrants(t, []model.Grant{
		{Action: model.ActionRead, Resource: model.ResourceAdmin},
	}, model.ActionRead, model.ResourceAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionWrongAction(t *testing.T) {
	rec := runWithGrants(t, []model.Grant{
		{Action: model.ActionRead, Resource: model.ResourceAdmin},
	}, model.ActionWrite, model.ResourceAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionEmptySnapshot(t *testing.T) {
	rec := runWithGrants(t, []model.Grant{}, model.ActionRead, model.ResourceAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionNoSnapshot(t *testing.T) {
	// JWTAuth never ran; deny rather than assume.
	rec := runWithGrants(t, nil, model.ActionRead, model.ResourceAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
