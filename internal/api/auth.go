package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the caller. Tokens carry the user id in "userId"; a token
// with only a subject is accepted with the subject as the user id.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// User returns the authenticated user id.
func (c Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Authenticator signs and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithNow sets the clock used to stamp and check token times.
func WithNow(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates an Authenticator. ttl is used by Sign; zero or
// negative means 24h.
func NewAuthenticator(secret string, ttl time.Duration, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	a := &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Sign issues a token for userID.
func (a *Authenticator) Sign(userID string) (string, error) {
	now := a.now().UTC()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

var (
	errTokenMissing = errors.New("access token required")
	errTokenExpired = errors.New("token expired")
	errTokenInvalid = errors.New("invalid token")
)

// Verify parses token and returns its claims.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, errTokenExpired
	}
	if err != nil {
		return nil, errTokenInvalid
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || c.User() == "" {
		return nil, errTokenInvalid
	}
	return c, nil
}

type userKey struct{}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "TOKEN_MISSING", errTokenMissing.Error())
			return
		}
		claims, err := a.Verify(token)
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, errTokenExpired) {
				code = "TOKEN_EXPIRED"
			}
			writeError(w, http.StatusUnauthorized, code, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, claims.User())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the user id stored by Middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
