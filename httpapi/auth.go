package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/halvardsen/chunkvault/internal/apperror"
)

// AuthUser is the authenticated caller, the Go analogue of
// original_source/app/auth.py's AuthUser dataclass.
type AuthUser struct {
	UserID  string
	APIKey  string
	IsAdmin bool
}

type authCtxKey int

const authUserKey authCtxKey = 0

func userFromContext(ctx context.Context) (AuthUser, bool) {
	u, ok := ctx.Value(authUserKey).(AuthUser)
	return u, ok
}

// Authenticator resolves an AuthUser from a request, grounded on auth.py's
// require_api_user (X-API-Key header mapped through api_key_mappings) with
// an added optional JWT bearer mode (auth_mode: "jwt") enriched from the
// golang-jwt/jwt/v5 dependency the domain stack carries but
// original_source never used.
type Authenticator struct {
	mode          string
	apiKeyToUser  map[string]string
	adminUserIDs  map[string]struct{}
	jwtSecret     []byte
	jwtAlgorithm  string
	jwtAudience   string
	jwtIssuer     string
}

func NewAuthenticator(mode string, apiKeyMappings map[string]string, adminUserIDs map[string]struct{}, jwtSecret, jwtAlgorithm, jwtAudience, jwtIssuer string) *Authenticator {
	return &Authenticator{
		mode:         mode,
		apiKeyToUser: apiKeyMappings,
		adminUserIDs: adminUserIDs,
		jwtSecret:    []byte(jwtSecret),
		jwtAlgorithm: jwtAlgorithm,
		jwtAudience:  jwtAudience,
		jwtIssuer:    jwtIssuer,
	}
}

func (a *Authenticator) authenticate(r *http.Request) (AuthUser, error) {
	if a.mode == "jwt" {
		return a.authenticateJWT(r)
	}
	return a.authenticateAPIKey(r)
}

func (a *Authenticator) authenticateAPIKey(r *http.Request) (AuthUser, error) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return AuthUser{}, apperror.New(apperror.KindAuth, "missing_api_key", "missing API key")
	}
	userID, ok := a.apiKeyToUser[apiKey]
	if !ok {
		return AuthUser{}, apperror.New(apperror.KindAuth, "invalid_api_key", "invalid API key")
	}
	_, isAdmin := a.adminUserIDs[userID]
	return AuthUser{UserID: userID, APIKey: apiKey, IsAdmin: isAdmin}, nil
}

func (a *Authenticator) authenticateJWT(r *http.Request) (AuthUser, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return AuthUser{}, apperror.New(apperror.KindAuth, "missing_bearer_token", "missing bearer token")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{a.jwtAlgorithm}), jwt.WithAudience(a.jwtAudience), jwt.WithIssuer(a.jwtIssuer))
	if err != nil || !parsed.Valid {
		return AuthUser{}, apperror.Wrap(apperror.KindAuth, "invalid_bearer_token", "invalid bearer token", err)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return AuthUser{}, apperror.New(apperror.KindAuth, "invalid_bearer_token", "bearer token missing subject claim")
	}
	_, isAdmin := a.adminUserIDs[userID]
	return AuthUser{UserID: userID, IsAdmin: isAdmin}, nil
}

// RequireUser authenticates every request, storing the AuthUser in context
// for handlers and RequireAdmin to read.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), authUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin additionally rejects non-admin users, grounded on auth.py's
// require_admin_user.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok || !user.IsAdmin {
			writeError(w, r, apperror.New(apperror.KindAuth, "admin_required", "admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
