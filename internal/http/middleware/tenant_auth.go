package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/innervoice/guide-ai-platform/internal/tenancy"
)

// tenantClaims is the token payload issued by the auth service. The tenant
// id claim is mandatory; sub carries the user id.
type tenantClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// TenantJWT validates an HMAC-signed bearer token and places the caller
// identity in the request context. Every request past this middleware has a
// tenant; handlers never see an anonymous context.
func TenantJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := tenantClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.TenantID == "" {
				http.Error(w, "token has no tenant", http.StatusUnauthorized)
				return
			}
			caller := tenancy.Caller{TenantID: claims.TenantID, UserID: claims.Subject}
			next.ServeHTTP(w, r.WithContext(tenancy.WithCaller(r.Context(), caller)))
		})
	}
}
