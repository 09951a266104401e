package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// SessionCookie carries the session token in browsers
const SessionCookie = "equiptrack_session"

// APIKeyHeader carries a static API key
const APIKeyHeader = "X-API-Key"

// ErrUnauthenticated is returned when a request carries no usable identity
var ErrUnauthenticated = errors.New("authentication required")

// Method names how an identity was established
type Method string

const (
	MethodHeader Method = "header"
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
)

// Identity is an authenticated caller
type Identity struct {
	Email  string
	Method Method
}

// Authenticator resolves a request to an identity
type Authenticator struct {
	trustedHeader string // empty disables header auth
	tokens        *TokenIssuer
	keys          *APIKeys
}

// NewAuthenticator creates an authenticator. trustedHeader is honored only
// in header mode; tokens and keys may be nil.
func NewAuthenticator(trustedHeader string, tokens *TokenIssuer, keys *APIKeys) *Authenticator {
	return &Authenticator{trustedHeader: trustedHeader, tokens: tokens, keys: keys}
}

// Tokens returns the session token issuer, or nil
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}

// Authenticate checks, in order, an API key, a session token (bearer or
// cookie) and the trusted header. A presented but invalid credential fails
// without falling through.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if a.keys != nil {
			if email, ok := a.keys.Authenticate(key); ok {
				return &Identity{Email: email, Method: MethodAPIKey}, nil
			}
		}
		return nil, ErrUnauthenticated
	}

	if raw := bearerToken(r); raw != "" {
		return a.verifyToken(raw)
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return a.verifyToken(c.Value)
	}

	if a.trustedHeader != "" {
		if email := strings.TrimSpace(r.Header.Get(a.trustedHeader)); email != "" {
			return &Identity{Email: email, Method: MethodHeader}, nil
		}
	}
	return nil, ErrUnauthenticated
}

func (a *Authenticator) verifyToken(raw string) (*Identity, error) {
	if a.tokens == nil {
		return nil, ErrUnauthenticated
	}
	email, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	return &Identity{Email: email, Method: MethodToken}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type ctxKey struct{}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}
