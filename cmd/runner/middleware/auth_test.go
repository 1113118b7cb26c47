package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIdentityChain(t *testing.T, headers map[string]string, chain ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := echo.HandlerFunc(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	require.NoError(t, handler(c))
	return rec, c
}

func TestExtractIdentityStoresHeaders(t *testing.T) {
	_, c := runIdentityChain(t, map[string]string{
		"X-Org-Id":    "org-42",
		"X-User-Id":   "user-7",
		"X-User-Role": RoleAdmin,
	}, ExtractIdentity())

	assert.Equal(t, "org-42", GetOrgID(c))
	assert.Equal(t, "user-7", GetUserID(c))
	assert.Equal(t, RoleAdmin, GetRole(c))
}

func TestExtractIdentityLeavesMissingHeadersUnset(t *testing.T) {
	_, c := runIdentityChain(t, nil, ExtractIdentity())

	assert.Equal(t, "", GetOrgID(c))
	assert.Equal(t, "", GetUserID(c))
	assert.Equal(t, "", GetRole(c))
}

func TestRequireRoleAllowsListedRoles(t *testing.T) {
	for _, role := range []string{RoleOwner, RoleAdmin, RoleMember} {
		rec, _ := runIdentityChain(t, map[string]string{"X-User-Role": role},
			ExtractIdentity(), RequireRole(RoleOwner, RoleAdmin, RoleMember))
		assert.Equal(t, http.StatusOK, rec.Code, "role %s should be allowed", role)
	}
}

func TestRequireRoleRejectsUnknownRole(t *testing.T) {
	rec, _ := runIdentityChain(t, map[string]string{"X-User-Role": "VIEWER"},
		ExtractIdentity(), RequireRole(RoleOwner, RoleAdmin, RoleMember))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Insufficient permissions"}`, rec.Body.String())
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	rec, _ := runIdentityChain(t, nil,
		ExtractIdentity(), RequireRole(RoleOwner, RoleAdmin, RoleMember))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoleIsCaseSensitive(t *testing.T) {
	rec, _ := runIdentityChain(t, map[string]string{"X-User-Role": "admin"},
		ExtractIdentity(), RequireRole(RoleOwner, RoleAdmin, RoleMember))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
