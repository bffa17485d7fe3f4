package middleware

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig holds JWT verification configuration.
type AuthConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// userClaims are the claims issued by the auth subsystem. The core only
// reads them; it never issues tokens.
type userClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and attaches the caller identity to
// the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			var claims userClaims
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			identity := Identity{
				ID:    claims.Subject,
				Email: claims.Email,
				Role:  claims.Role,
			}
			if identity.ID == "" {
				writeError(w, http.StatusUnauthorized, "Token missing subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
