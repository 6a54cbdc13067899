package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_GenerateValidate(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.Generate("alice", RoleOperator)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTManager_Invalid(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	good, _ := m.Generate("alice", RoleOperator)

	// 过期令牌
	expired := NewJWTManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Generate("alice", RoleOperator)

	// 非 HS256 算法
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleOperator}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		manager *JWTManager
		token   string
		want    error
	}{
		{"wrong secret", NewJWTManager("other", time.Hour), good, ErrInvalidToken},
		{"garbage", m, "not-a-token", ErrInvalidToken},
		{"expired", m, old, ErrExpiredToken},
		{"alg none", m, none, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.manager.Validate(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMiddleware_Authenticate(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	operator, _ := m.Generate("alice", RoleOperator)
	viewer, _ := m.Generate("bob", RoleViewer)

	var seen *Operator
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetOperator(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		enabled  bool
		method   string
		token    string
		wantCode int
		wantSub  string
	}{
		{"disabled", false, http.MethodPost, "", http.StatusOK, ""},
		{"read only", true, http.MethodGet, "", http.StatusOK, ""},
		{"missing token", true, http.MethodPost, "", http.StatusUnauthorized, ""},
		{"bad token", true, http.MethodDelete, "junk", http.StatusUnauthorized, ""},
		{"viewer", true, http.MethodPost, viewer, http.StatusForbidden, ""},
		{"operator", true, http.MethodPost, operator, http.StatusOK, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			h := NewMiddleware(m, tt.enabled).Authenticate(next)
			req := httptest.NewRequest(tt.method, "/api/v1/resources", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantSub != "" && (seen == nil || seen.Subject != tt.wantSub) {
				t.Errorf("operator = %+v", seen)
			}
		})
	}
}
