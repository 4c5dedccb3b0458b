package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/domain"
)

const secret = "0123456789abcdef0123456789abcdef"

func newAuth() *Authenticator {
	return New(Options{
		APIKeys: []APIKey{
			{Key: "admin-key-0123456789", Address: "archway1admin"},
			{Key: "agent-key-0123456789", Address: "archway1agent", Role: RoleScheduler},
		},
		JWTSecret: secret,
		Issuer:    "autorenew",
	})
}

func request(header, value string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestAPIKeyMapsToAddress(t *testing.T) {
	a := newAuth()

	p, err := a.Authenticate(request(APIKeyHeader, "admin-key-0123456789"))
	require.NoError(t, err)
	assert.Equal(t, domain.Addr("archway1admin"), p.Address)
	assert.Equal(t, RoleUser, p.Role)
	assert.Equal(t, MethodAPIKey, p.Method)

	p, err = a.Authenticate(request(APIKeyHeader, "agent-key-0123456789"))
	require.NoError(t, err)
	assert.Equal(t, RoleScheduler, p.Role)

	_, err = a.Authenticate(request(APIKeyHeader, "admin-key-012345678"))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSenderHeaderIsNotACredential(t *testing.T) {
	_, err := newAuth().Authenticate(request("X-Sender", "archway1admin"))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIssuedTokenRoundTrip(t *testing.T) {
	a := newAuth()
	tok, err := a.Issue("archway1agent", RoleScheduler, time.Hour)
	require.NoError(t, err)

	p, err := a.Authenticate(request("Authorization", "Bearer "+tok))
	require.NoError(t, err)
	assert.Equal(t, domain.Addr("archway1agent"), p.Address)
	assert.Equal(t, RoleScheduler, p.Role)
	assert.Equal(t, MethodJWT, p.Method)
}

func TestRejectedTokens(t *testing.T) {
	a := newAuth()
	now := time.Now()
	sign := func(key string, method jwt.SigningMethod, c Claims) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(method, c).SignedString([]byte(key))
		require.NoError(t, err)
		return tok
	}
	valid := jwt.RegisteredClaims{
		Subject:   "archway1admin",
		Issuer:    "autorenew",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"
	noSubject := valid
	noSubject.Subject = ""

	cases := map[string]string{
		"wrong secret": sign("ffffffffffffffffffffffffffffffff", jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}),
		"wrong alg":    sign(secret, jwt.SigningMethodHS512, Claims{RegisteredClaims: valid}),
		"expired":      sign(secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: expired}),
		"no expiry":    sign(secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: noExpiry}),
		"issuer":       sign(secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: otherIssuer}),
		"no subject":   sign(secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: noSubject}),
		"bad role":     sign(secret, jwt.SigningMethodHS256, Claims{Role: "root", RegisteredClaims: valid}),
		"garbage":      "not-a-token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(request("Authorization", "Bearer "+tok))
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestTokensNeedASecret(t *testing.T) {
	a := New(Options{})
	assert.False(t, a.Enabled())
	_, err := a.Issue("archway1admin", RoleUser, time.Hour)
	assert.ErrorIs(t, err, ErrNoSigningKey)

	signed, err := newAuth().Issue("archway1admin", RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = a.Authenticate(request("Authorization", "Bearer "+signed))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	var seen Principal
	h := newAuth().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("X-Sender", "archway1admin"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, request(APIKeyHeader, "admin-key-0123456789"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.Addr("archway1admin"), seen.Address)
}
