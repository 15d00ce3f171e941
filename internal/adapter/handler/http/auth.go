package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type principalKey struct{}

// TokenAuthenticator resolves static bearer tokens to principals
type TokenAuthenticator struct {
	tokens []tokenEntry
	log    *zap.Logger
}

type tokenEntry struct {
	token     []byte
	principal domain.Principal
}

// NewTokenAuthenticator keeps tokens whose role is known and skips the rest
func NewTokenAuthenticator(tokens map[string]domain.Principal, log *zap.Logger) *TokenAuthenticator {
	a := &TokenAuthenticator{log: log}
	for token, p := range tokens {
		if token == "" || domain.ParseRole(string(p.Role)) == "" {
			log.Warn("Skipping auth token with unknown role", zap.String("user_id", p.UserID))
			continue
		}
		p.Role = domain.ParseRole(string(p.Role))
		a.tokens = append(a.tokens, tokenEntry{token: []byte(token), principal: p})
	}
	return a
}

// Authenticate returns the principal of token, comparing every entry in constant time
func (a *TokenAuthenticator) Authenticate(token string) (domain.Principal, bool) {
	var (
		found domain.Principal
		ok    bool
	)
	given := []byte(token)
	for _, e := range a.tokens {
		if subtle.ConstantTimeCompare(e.token, given) == 1 {
			found, ok = e.principal, true
		}
	}
	return found, ok && token != ""
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireRole rejects requests without a valid token (401) or below min (403)
func (a *TokenAuthenticator) RequireRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && websocket.IsWebSocketUpgrade(r) {
				// Browsers cannot set headers on websocket upgrades
				token = r.URL.Query().Get("token")
			}
			principal, ok := a.Authenticate(token)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
				return
			}
			if !principal.Role.AtLeast(min) {
				a.log.Info("Insufficient role",
					zap.String("user_id", principal.UserID),
					zap.String("role", string(principal.Role)),
					zap.String("required", string(min)),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusForbidden, CodeForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
		})
	}
}

// PrincipalFrom returns the caller stored by RequireRole
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}
