// Package auth turns a request credential into the caller address the
// module checks. Callers present either a configured API key or an HS256
// bearer token whose subject is their address; nothing the caller merely
// claims about itself is trusted.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"autorenew/internal/domain"
)

const APIKeyHeader = "X-API-Key"

var (
	ErrUnauthenticated = errors.New("missing or invalid credential")
	ErrNoSigningKey    = errors.New("no token signing secret configured")
)

// Role widens what a caller may reach over the API. The module's own admin
// and executor checks still run on the caller address.
type Role string

const (
	RoleUser Role = "user"
	// RoleOperator may instantiate the module.
	RoleOperator Role = "operator"
	// RoleScheduler may deliver renewal triggers.
	RoleScheduler Role = "scheduler"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case "":
		return RoleUser, nil
	case RoleUser, RoleOperator, RoleScheduler:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Principal is an authenticated caller.
type Principal struct {
	Address domain.Addr
	Role    Role
	Method  Method
}

type APIKey struct {
	Key     string
	Address domain.Addr
	Role    Role
}

type Options struct {
	APIKeys []APIKey
	// JWTSecret enables bearer tokens when non-empty.
	JWTSecret string
	Issuer    string
}

type Claims struct {
	Role Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	keys   []APIKey
	secret []byte
	issuer string
	now    func() time.Time
}

// New with zero Options rejects every request.
func New(o Options) *Authenticator {
	a := &Authenticator{issuer: o.Issuer, now: time.Now}
	for _, k := range o.APIKeys {
		if k.Key == "" || k.Address.Empty() {
			continue
		}
		if k.Role == "" {
			k.Role = RoleUser
		}
		a.keys = append(a.keys, k)
	}
	if o.JWTSecret != "" {
		a.secret = []byte(o.JWTSecret)
	}
	return a
}

// Enabled reports whether any credential can ever be accepted.
func (a *Authenticator) Enabled() bool { return len(a.keys) > 0 || len(a.secret) > 0 }

func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return a.apiKey(key)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return a.bearer(strings.TrimPrefix(h, "Bearer "))
	}
	return Principal{}, ErrUnauthenticated
}

func (a *Authenticator) apiKey(key string) (Principal, error) {
	var found *APIKey
	// every key is compared so timing does not depend on which one matched
	for i := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.keys[i].Key)) == 1 {
			found = &a.keys[i]
		}
	}
	if found == nil {
		return Principal{}, ErrUnauthenticated
	}
	return Principal{Address: found.Address, Role: found.Role, Method: MethodAPIKey}, nil
}

func (a *Authenticator) bearer(raw string) (Principal, error) {
	if len(a.secret) == 0 {
		return Principal{}, ErrUnauthenticated
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	addr := domain.Addr(claims.Subject)
	if addr.Empty() {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return Principal{Address: addr, Role: role, Method: MethodJWT}, nil
}

// Issue signs a token for addr valid for ttl.
func (a *Authenticator) Issue(addr domain.Addr, role Role, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSigningKey
	}
	if addr.Empty() {
		return "", errors.New("empty address")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Middleware rejects unauthenticated requests with 401 and stores the
// principal of the others in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("authentication failed")
			w.Header().Set("WWW-Authenticate", `Bearer realm="autorenew"`)
			http.Error(w, ErrUnauthenticated.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
