package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeWrite is required to submit transactions when JWT auth is enabled.
const ScopeWrite = "rmt:write"

var (
	ErrAuthNotConfigured = errors.New("RPC authentication not configured")
	ErrMissingToken      = errors.New("missing bearer token")
	ErrInvalidToken      = errors.New("invalid RPC credentials")
	ErrInsufficientScope = errors.New("insufficient scope")
)

type AuthConfig struct {
	// StaticToken is compared in constant time when set.
	StaticToken string
	// HMACSecret enables HS256 JWT bearer tokens.
	HMACSecret string
	Issuer     string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const ContextKeySubject contextKey = "rmt.subject"

// Authenticator checks bearer credentials on state-changing requests.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	token  []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		token:  []byte(strings.TrimSpace(cfg.StaticToken)),
	}
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && (len(a.secret) > 0 || len(a.token) > 0)
}

// Verify returns the authenticated subject. A matching static token yields
// the subject "static".
func (a *Authenticator) Verify(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthNotConfigured
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return "", ErrMissingToken
	}
	if len(a.token) > 0 && subtle.ConstantTimeCompare([]byte(raw), a.token) == 1 {
		return "static", nil
	}
	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}
	claims, err := a.parseToken(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hasScopes(extractScopes(claims, a.cfg.ScopeClaim), []string{ScopeWrite}) {
		return "", ErrInsufficientScope
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}

// Middleware rejects requests that fail Verify.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.Verify(r)
		switch {
		case errors.Is(err, ErrInsufficientScope):
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeySubject, subject)))
	})
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
