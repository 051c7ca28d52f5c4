package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
)

type contextKey string

const requesterIDKey contextKey = "requesterID"

// WithRequesterID returns a context carrying the caller's user id
func WithRequesterID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, requesterIDKey, userID)
}

// RequesterID returns the caller's user id, or "" for anonymous requests
func RequesterID(ctx context.Context) string {
	id, _ := ctx.Value(requesterIDKey).(string)
	return id
}

// Authenticator turns HS256 bearer tokens into requester ids. The token's
// "sub" claim is the user id. Requests without a valid token continue
// anonymously; each operation decides whether that is enough.
type Authenticator struct {
	tokenAuth *jwtauth.JWTAuth
	logger    *slog.Logger
}

// NewAuthenticator creates an authenticator. With an empty secret every
// request is anonymous.
func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{logger: logger}
	if secret != "" {
		a.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
	}
	return a
}

// Enabled reports whether tokens can be verified
func (a *Authenticator) Enabled() bool {
	return a.tokenAuth != nil
}

// Middleware verifies the bearer token, when present, and stores its
// subject as the requester id
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if a.tokenAuth == nil {
		return next
	}

	identify := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if !errors.Is(err, jwtauth.ErrNoTokenFound) {
				a.logger.Debug("Ignoring invalid bearer token", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		if token == nil {
			next.ServeHTTP(w, r)
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			a.logger.Debug("Bearer token has no subject", "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithRequesterID(r.Context(), sub)))
	})

	return jwtauth.Verifier(a.tokenAuth)(identify)
}

// IssueToken signs a token for userID valid for ttl
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	if a.tokenAuth == nil {
		return "", errors.New("token signing is not configured")
	}
	claims := map[string]interface{}{"sub": userID}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)
	_, tokenString, err := a.tokenAuth.Encode(claims)
	return tokenString, err
}
