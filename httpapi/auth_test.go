package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User-ID", user.UserID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_APIKeyMode_AcceptsMappedKey(t *testing.T) {
	auth := NewAuthenticator("api_key", map[string]string{"secret-key": "user-1"}, map[string]struct{}{}, "", "", "", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Header().Get("X-User-ID"))
}

func TestAuthenticator_APIKeyMode_RejectsMissingKey(t *testing.T) {
	auth := NewAuthenticator("api_key", map[string]string{}, map[string]struct{}{}, "", "", "", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthenticator_APIKeyMode_RejectsUnknownKey(t *testing.T) {
	auth := NewAuthenticator("api_key", map[string]string{"secret-key": "user-1"}, map[string]struct{}{}, "", "", "", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthenticator_JWTMode_AcceptsValidToken(t *testing.T) {
	secret := "test-secret"
	auth := NewAuthenticator("jwt", nil, map[string]struct{}{}, secret, "HS256", "chunkvault", "chunkvault-issuer")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"aud": "chunkvault",
		"iss": "chunkvault-issuer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", rec.Header().Get("X-User-ID"))
}

func TestAuthenticator_JWTMode_RejectsBadSignature(t *testing.T) {
	auth := NewAuthenticator("jwt", nil, map[string]struct{}{}, "correct-secret", "HS256", "chunkvault", "chunkvault-issuer")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"aud": "chunkvault",
		"iss": "chunkvault-issuer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthenticator_JWTMode_RejectsMissingBearerPrefix(t *testing.T) {
	auth := NewAuthenticator("jwt", nil, map[string]struct{}{}, "secret", "HS256", "chunkvault", "chunkvault-issuer")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rec := httptest.NewRecorder()

	auth.RequireUser(newEchoHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAdmin_AllowsAdminUser(t *testing.T) {
	auth := NewAuthenticator("api_key", map[string]string{"admin-key": "admin-1"}, map[string]struct{}{"admin-1": {}}, "", "", "", "")

	handler := auth.RequireUser(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "admin-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdmin_RejectsNonAdminUser(t *testing.T) {
	auth := NewAuthenticator("api_key", map[string]string{"user-key": "user-1"}, map[string]struct{}{}, "", "", "", "")

	handler := auth.RequireUser(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "user-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
