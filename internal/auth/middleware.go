package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

// OperatorContextKey 请求上下文中已认证操作者的键
const OperatorContextKey contextKey = "operator"

// Operator 已认证的操作者
type Operator struct {
	Subject string
	Role    string
}

// Middleware 认证中间件
type Middleware struct {
	jwt     *JWTManager
	enabled bool
}

// NewMiddleware 创建认证中间件；enabled 为 false 时所有请求直接放行
func NewMiddleware(jwt *JWTManager, enabled bool) *Middleware {
	return &Middleware{jwt: jwt, enabled: enabled}
}

// Authenticate 校验修改类请求的 Bearer 令牌。
// GET、HEAD、OPTIONS 请求不需要令牌；viewer 角色不能执行修改类请求。
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled || isReadOnly(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			deny(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := m.jwt.Validate(token)
		if err != nil {
			deny(w, http.StatusUnauthorized, err.Error())
			return
		}
		if claims.Role == RoleViewer {
			deny(w, http.StatusForbidden, "role viewer cannot modify resources")
			return
		}

		ctx := context.WithValue(r.Context(), OperatorContextKey, &Operator{
			Subject: claims.Subject,
			Role:    claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// GetOperator 返回请求上下文中的操作者，未认证时返回 nil
func GetOperator(ctx context.Context) *Operator {
	if op, ok := ctx.Value(OperatorContextKey).(*Operator); ok {
		return op
	}
	return nil
}
