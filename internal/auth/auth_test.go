package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/equiptrack/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	token, expires, err := issuer.Issue("sam@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(expires) <= 59*time.Minute {
		t.Errorf("expires = %v, want about an hour from now", expires)
	}

	email, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if email != "sam@example.com" {
		t.Errorf("Verify() = %q", email)
	}
}

func TestTokenRejected(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)
	other, _ := NewTokenIssuer(strings.Repeat("x", 32), time.Hour)

	forged, _, _ := other.Issue("sam@example.com")
	if _, err := issuer.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(wrong key) error = %v, want ErrInvalidToken", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := issuer.Issue("sam@example.com")
	issuer.now = time.Now
	if _, err := issuer.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(expired) error = %v, want ErrInvalidToken", err)
	}

	if _, err := issuer.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(garbage) error = %v, want ErrInvalidToken", err)
	}

	if _, err := NewTokenIssuer("", time.Hour); err == nil {
		t.Error("NewTokenIssuer(empty) expected error")
	}
}

func TestAPIKeys(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		t.Errorf("GenerateKey() = %q, missing prefix", key)
	}

	// Minimum cost keeps the test fast
	hash, _ := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	keys := NewAPIKeys([]config.APIKeyConfig{{Email: "bot@example.com", KeyHash: string(hash)}})

	email, ok := keys.Authenticate(key)
	if !ok || email != "bot@example.com" {
		t.Errorf("Authenticate() = %q, %v", email, ok)
	}
	if _, ok := keys.Authenticate("wrong"); ok {
		t.Error("Authenticate(wrong) succeeded")
	}
	if _, ok := keys.Authenticate(""); ok {
		t.Error("Authenticate(empty) succeeded")
	}

	stored, err := HashKey("secret")
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("secret")) != nil {
		t.Error("HashKey() produced a hash that does not match")
	}
}

func TestAuthenticator(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)
	hash, _ := bcrypt.GenerateFromPassword([]byte("k1"), bcrypt.MinCost)
	keys := NewAPIKeys([]config.APIKeyConfig{{Email: "bot@example.com", KeyHash: string(hash)}})
	a := NewAuthenticator("X-Forwarded-Email", issuer, keys)

	token, _, _ := issuer.Issue("tok@example.com")

	tests := []struct {
		name       string
		headers    map[string]string
		cookie     string
		wantEmail  string
		wantMethod Method
		wantErr    bool
	}{
		{"trusted header", map[string]string{"X-Forwarded-Email": " sam@example.com "}, "", "sam@example.com", MethodHeader, false},
		{"bearer token", map[string]string{"Authorization": "Bearer " + token}, "", "tok@example.com", MethodToken, false},
		{"cookie token", nil, token, "tok@example.com", MethodToken, false},
		{"api key", map[string]string{APIKeyHeader: "k1"}, "", "bot@example.com", MethodAPIKey, false},
		{"bad api key does not fall through", map[string]string{APIKeyHeader: "nope", "X-Forwarded-Email": "sam@example.com"}, "", "", "", true},
		{"bad token does not fall through", map[string]string{"Authorization": "Bearer junk", "X-Forwarded-Email": "sam@example.com"}, "", "", "", true},
		{"nothing", nil, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/me", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}

			id, err := a.Authenticate(r)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Authenticate() = %+v, want error", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if id.Email != tt.wantEmail || id.Method != tt.wantMethod {
				t.Errorf("Authenticate() = %+v", id)
			}
		})
	}

	// OIDC mode: the trusted header is ignored
	oidcMode := NewAuthenticator("", issuer, nil)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-Email", "sam@example.com")
	if _, err := oidcMode.Authenticate(r); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Authenticate() without header mode error = %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("FromContext(empty) != nil")
	}
	ctx := WithIdentity(context.Background(), &Identity{Email: "sam@example.com", Method: MethodHeader})
	if id := FromContext(ctx); id == nil || id.Email != "sam@example.com" {
		t.Errorf("FromContext() = %+v", id)
	}
}

func TestGenerateState(t *testing.T) {
	state1, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}
	state2, _ := generateState()
	if state1 == state2 {
		t.Error("generateState() returned duplicate states")
	}
	if len(state1) < 40 {
		t.Errorf("generateState() state too short: %d chars", len(state1))
	}
}

func TestOIDCStateConsumption(t *testing.T) {
	p := &OIDCProvider{
		config: &config.OIDCConfig{ClientID: "test-client"},
		states: make(map[string]time.Time),
	}

	p.states["fresh"] = time.Now()
	p.states["stale"] = time.Now().Add(-stateTTL - time.Minute)

	if !p.consumeState("fresh") {
		t.Error("fresh state rejected")
	}
	if p.consumeState("fresh") {
		t.Error("state accepted twice")
	}
	if p.consumeState("stale") {
		t.Error("expired state accepted")
	}
	if p.consumeState("unknown") {
		t.Error("unknown state accepted")
	}
}

func TestOIDCProviderDisabled(t *testing.T) {
	provider, err := NewOIDCProvider(context.Background(), &config.OIDCConfig{})
	if err != nil {
		t.Fatalf("NewOIDCProvider() error = %v", err)
	}
	if provider != nil {
		t.Error("NewOIDCProvider() should return nil without an issuer")
	}
}

func TestGroupAllowed(t *testing.T) {
	if !groupAllowed(nil, nil) {
		t.Error("empty allow-list should admit everyone")
	}
	if !groupAllowed([]string{"ops"}, []string{"dev", "ops"}) {
		t.Error("member of allowed group rejected")
	}
	if groupAllowed([]string{"ops"}, []string{"dev"}) {
		t.Error("non-member admitted")
	}
}
