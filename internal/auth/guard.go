// Package auth issues and validates the credentials the remote tool
// channel runs on: a static API-key allowlist, short-lived signed
// access tokens, and single-use opaque refresh tokens.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated covers every credential failure: unknown API key,
// bad signature, expired or mistyped token, spent refresh token.
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultScopes are granted to every authenticated client.
var DefaultScopes = []string{"chat", "tools"}

// TokenPair is what a successful authentication or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Identity is the validated content of an access token.
type Identity struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the identity carries the named scope.
func (id Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Config holds guard settings.
type Config struct {
	// APIKeys is the allowlist of long-lived client keys.
	APIKeys []string
	// SigningSecret signs access tokens. A random per-process secret
	// is generated when empty, which invalidates tokens on restart.
	SigningSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// Scopes overrides DefaultScopes when non-empty.
	Scopes []string
}

type refreshRecord struct {
	subject   string
	expiresAt time.Time
}

// Guard authenticates channel clients and manages their token lifecycle.
type Guard struct {
	secret     []byte
	apiKeys    [][]byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	scopes     []string

	mu      sync.Mutex
	refresh map[string]refreshRecord
	now     func() time.Time
}

// NewGuard creates a guard. It fails when no API keys are configured;
// an open channel endpoint is never acceptable.
func NewGuard(cfg Config) (*Guard, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("auth: at least one API key must be configured")
	}

	secret := []byte(cfg.SigningSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("auth: generating signing secret: %w", err)
		}
	}

	keys := make([][]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		keys[i] = []byte(k)
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &Guard{
		secret:     secret,
		apiKeys:    keys,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		scopes:     scopes,
		refresh:    make(map[string]refreshRecord),
		now:        time.Now,
	}, nil
}

// Authenticate checks an API key against the allowlist and issues a
// token pair for the client. Key comparison is constant-time.
func (g *Guard) Authenticate(apiKey, clientID string) (*TokenPair, error) {
	presented := []byte(apiKey)

	matched := false
	for _, key := range g.apiKeys {
		// ConstantTimeCompare requires equal lengths; the length check
		// itself leaks nothing useful about key content.
		if len(key) == len(presented) && subtle.ConstantTimeCompare(key, presented) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: unknown API key", ErrUnauthenticated)
	}

	if clientID == "" {
		clientID = "client"
	}
	return g.issuePair(clientID)
}

// Validate parses and verifies an access token, returning the identity
// it carries.
func (g *Guard) Validate(accessToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid access token", ErrUnauthenticated)
	}

	if typ, _ := claims["typ"].(string); typ != "access" {
		return nil, fmt.Errorf("%w: wrong token type", ErrUnauthenticated)
	}

	subject, _ := claims["sub"].(string)
	identity := &Identity{Subject: subject}
	if raw, ok := claims["scopes"].([]interface{}); ok {
		for _, s := range raw {
			if scope, ok := s.(string); ok {
				identity.Scopes = append(identity.Scopes, scope)
			}
		}
	}

	return identity, nil
}

// Refresh exchanges a refresh token for a fresh pair and invalidates
// it. A token can be spent exactly once; under concurrent reuse one
// caller wins and the rest get ErrUnauthenticated.
func (g *Guard) Refresh(refreshToken string) (*TokenPair, error) {
	g.mu.Lock()
	record, ok := g.refresh[refreshToken]
	if ok {
		delete(g.refresh, refreshToken)
	}
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown or spent refresh token", ErrUnauthenticated)
	}
	if g.now().After(record.expiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", ErrUnauthenticated)
	}

	return g.issuePair(record.subject)
}

// Revoke drops every outstanding refresh token for a subject.
func (g *Guard) Revoke(subject string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for token, record := range g.refresh {
		if record.subject == subject {
			delete(g.refresh, token)
		}
	}
}

func (g *Guard) issuePair(subject string) (*TokenPair, error) {
	now := g.now()

	claims := jwt.MapClaims{
		"sub":    subject,
		"typ":    "access",
		"scopes": g.scopes,
		"iat":    now.Unix(),
		"exp":    now.Add(g.accessTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: signing access token: %w", err)
	}

	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.refresh[refresh] = refreshRecord{subject: subject, expiresAt: now.Add(g.refreshTTL)}
	g.mu.Unlock()

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(g.accessTTL.Seconds()),
	}, nil
}

// generateOpaqueToken returns 32 bytes of crypto/rand entropy in
// URL-safe base64.
func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
