package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"agent-bff/internal/domain"
)

// DefaultProjectClaim is the token claim read as the caller's project.
const DefaultProjectClaim = "project_id"

// Authenticator turns a bearer token into a domain.Identity on the request
// context.
type Authenticator struct {
	validator    TokenValidator
	projectClaim string
	logger       *slog.Logger
}

// NewAuthenticator creates an Authenticator. An empty projectClaim uses
// DefaultProjectClaim.
func NewAuthenticator(v TokenValidator, projectClaim string, logger *slog.Logger) *Authenticator {
	if projectClaim == "" {
		projectClaim = DefaultProjectClaim
	}
	return &Authenticator{validator: v, projectClaim: projectClaim, logger: logger.With("component", "auth")}
}

// Middleware rejects requests without a valid bearer token carrying a subject.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := a.validator.Validate(r.Context(), token)
			if err != nil {
				a.logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
				writeUnauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}
			id := domain.Identity{UserID: claims.Subject, ProjectID: claims.String(a.projectClaim)}
			next.ServeHTTP(w, r.WithContext(domain.WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="agent-bff"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": http.StatusUnauthorized, "message": "unauthorized: " + msg})
}
