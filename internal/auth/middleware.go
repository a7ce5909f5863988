package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bastionsec/bastion/internal/models"
	apphttp "github.com/bastionsec/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing token claims in context
	UserContextKey contextKey = "user"
)

// EventRecorder receives security events raised inside the middleware.
// Recording is best effort, a failed write never blocks the request.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *models.SecurityEvent)
}

// UserFetcher looks up the current user for role checks
type UserFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Middleware validates session tokens and injects claims into context
type Middleware struct {
	tokenManager *TokenManager
	events       EventRecorder
	ipConfig     *apphttp.IPConfig
}

func NewMiddleware(tm *TokenManager, events EventRecorder, ipConfig *apphttp.IPConfig) *Middleware {
	return &Middleware{
		tokenManager: tm,
		events:       events,
		ipConfig:     ipConfig,
	}
}

// extractToken pulls the session token from the Authorization header or,
// failing that, the session cookie.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	if token, err := GetSessionCookie(r); err == nil {
		return token
	}
	return ""
}

// RequireAuth rejects requests without a valid session token. A token that
// is present but fails validation raises an invalid_token event, since a
// malformed or tampered token is itself a signal worth correlating.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			apphttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.tokenManager.ValidateToken(tokenString)
		if err != nil {
			if m.events != nil {
				ip := apphttp.ExtractClientIP(r, m.ipConfig)
				m.events.RecordEvent(r.Context(), &models.SecurityEvent{
					Level:       models.LevelWarn,
					Event:       models.EventInvalidToken,
					IPAddress:   &ip,
					Description: "Session token failed validation",
					Tags:        []string{"auth", "token"},
					Metadata: models.Metadata{
						"path":   r.URL.Path,
						"method": r.Method,
					},
				})
			}
			apphttp.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole enforces role-based access using the role stored in the
// database rather than the token, so demotions take effect immediately.
func (m *Middleware) RequireRole(users UserFetcher, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				apphttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				apphttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			if user.Role != role {
				apphttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts token claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
