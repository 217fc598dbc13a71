package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTValidator_HTTPMiddleware(t *testing.T) {
	validator, privateKey, issuer, audience, _ := setupTestValidator(t)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r)
		if claims == nil {
			http.Error(w, "no claims found", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"subject": claims.Subject, "email": claims.Email,
			"role": claims.Role, "tenant_id": claims.TenantID,
		})
	})
	middleware := validator.HTTPMiddleware(testHandler)

	t.Run("valid_token", func(t *testing.T) {
		token, err := createTestJWT(privateKey, issuer, audience, "test-user-123", map[string]interface{}{
			"email": "test@example.com", "role": "admin", "tenant_id": "tenant-456",
		})
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"email":"test@example.com","role":"admin","subject":"test-user-123","tenant_id":"tenant-456"}`, rr.Body.String())
	})

	t.Run("missing_authorization_header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "missing Authorization header")
	})

	t.Run("invalid_authorization_format", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "InvalidFormat token")
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid Authorization format")
	})

	t.Run("invalid_token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthorized:")
	})

	t.Run("expired_token", func(t *testing.T) {
		token := jwt.New()
		require.NoError(t, token.Set(jwt.IssuerKey, issuer))
		require.NoError(t, token.Set(jwt.AudienceKey, audience))
		require.NoError(t, token.Set(jwt.SubjectKey, "test-user-123"))
		require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now().Add(-2*time.Hour)))
		require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(-1*time.Hour)))
		key, err := jwk.FromRaw(privateKey)
		require.NoError(t, err)
		signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+string(signed))
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthorized:")
	})
}

func TestGetClaims(t *testing.T) {
	t.Run("request_with_claims", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req = req.WithContext(ContextWithClaims(req.Context(), &Claims{Subject: "test-user-123", Role: "admin"}))
		claims := GetClaims(req)
		require.NotNil(t, claims)
		assert.Equal(t, "test-user-123", claims.Subject)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("request_without_claims", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		assert.Nil(t, GetClaims(req))
	})
}

func TestRequireRole(t *testing.T) {
	validator, privateKey, issuer, audience, _ := setupTestValidator(t)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("access granted"))
	})

	tests := []struct {
		name           string
		allowedRoles   []string
		tokenRole      string
		expectedStatus int
	}{
		{"user_with_allowed_role", []string{"admin", "user"}, "admin", http.StatusOK},
		{"user_with_another_allowed_role", []string{"admin", "user"}, "user", http.StatusOK},
		{"user_without_allowed_role", []string{"admin"}, "user", http.StatusForbidden},
		{"user_with_empty_role", []string{"admin"}, "", http.StatusForbidden},
		{"no_allowed_roles", []string{}, "admin", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := createTestJWT(privateKey, issuer, audience, "test-user-123", map[string]interface{}{
				"email": "test@example.com", "role": tt.tokenRole,
			})
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			rr := httptest.NewRecorder()
			RequireRole(validator, tt.allowedRoles...)(testHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusForbidden {
				assert.Contains(t, rr.Body.String(), "forbidden")
			}
		})
	}
}

func TestRequireTenant(t *testing.T) {
	validator, privateKey, issuer, audience, _ := setupTestValidator(t)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("access granted"))
	})

	tests := []struct {
		name           string
		allowedTenants []string
		tokenTenantID  string
		expectedStatus int
	}{
		{"user_with_allowed_tenant", []string{"tenant-123", "tenant-456"}, "tenant-123", http.StatusOK},
		{"user_without_allowed_tenant", []string{"tenant-123"}, "tenant-789", http.StatusForbidden},
		{"no_allowed_tenants", []string{}, "tenant-123", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := createTestJWT(privateKey, issuer, audience, "test-user-123", map[string]interface{}{
				"role": "user", "tenant_id": tt.tokenTenantID,
			})
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			rr := httptest.NewRecorder()
			RequireTenant(validator, tt.allowedTenants...)(testHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusForbidden {
				assert.Contains(t, rr.Body.String(), "forbidden")
			}
		})
	}
}

func TestRequireRole_WithoutToken(t *testing.T) {
	validator, _, _, _, _ := setupTestValidator(t)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	RequireRole(validator, "admin")(testHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "missing Authorization header"))
}

func TestRequireTenant_WithoutToken(t *testing.T) {
	validator, _, _, _, _ := setupTestValidator(t)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	RequireTenant(validator, "tenant-123")(testHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "missing Authorization header"))
}
