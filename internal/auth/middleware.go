package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Middleware extracts the actor from the Authorization header.
type Middleware struct {
	secret []byte
	logger *slog.Logger
}

// NewMiddleware constructs the middleware.
func NewMiddleware(secret []byte, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{secret: secret, logger: logger}
}

// Handler parses a bearer token into the request context. Requests without
// a token pass through anonymously; a token that fails verification is
// rejected.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authorization header is not a bearer token")
			return
		}
		actor, err := ParseToken(m.secret, token)
		if err != nil {
			m.logger.Warn("token rejected", slog.Any("error", err))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
