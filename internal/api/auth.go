package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/internal/api/responses"
	"github.com/inferloop/modelregistry/pkg/errors"
)

// ScopeWrite allows registering, promoting, archiving and recomputing
const ScopeWrite = "registry:write"

// Claims are the JWT claims the API accepts
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims grant scope
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IssueToken signs an HS256 token for subject
func IssueToken(secret []byte, subject string, scopes []string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.NewValidationError(errors.CodeInvalidConfig, "JWT secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns its claims
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// AuthMiddleware requires a bearer token with the write scope on every
// request that is not GET or HEAD. Reads stay anonymous.
func AuthMiddleware(secret []byte, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeUnauthorized(w, r, "bearer token required")
				return
			}

			claims, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WithFields(logrus.Fields{
					"request_id": responses.RequestID(r.Context()),
					"path":       r.URL.Path,
					"error":      err.Error(),
				}).Warn("Rejected bearer token")
				writeUnauthorized(w, r, "invalid bearer token")
				return
			}
			if !claims.HasScope(ScopeWrite) {
				writeUnauthorized(w, r, fmt.Sprintf("token lacks scope %s", ScopeWrite))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	appErr := errors.NewValidationError(errors.CodeUnauthorized, message)
	appErr.HTTPStatus = http.StatusUnauthorized
	w.Header().Set("WWW-Authenticate", `Bearer realm="modelregistry"`)
	responses.WriteError(w, r, appErr, nil)
}
