package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/dapurnia/backend-pos/internal/auth"
	"github.com/dapurnia/backend-pos/internal/common"
)

var testSecret = []byte("unit-test-secret")

func signToken(t *testing.T, subject, role, issuer string, expires time.Time) string {
	t.Helper()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(expires).
		Claim("role", role)
	if issuer != "" {
		builder = builder.Issuer(issuer)
	}
	token, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)
	return string(signed)
}

func TestParseActor(t *testing.T) {
	m := auth.Middleware{Secret: testSecret, Issuer: "pos"}
	raw := signToken(t, "cashier-1", "cashier", "pos", time.Now().Add(time.Hour))

	actor, err := m.ParseActor(raw)
	require.NoError(t, err)
	require.Equal(t, common.Actor{ID: "cashier-1", Role: "cashier"}, actor)
}

func TestParseActorRejectsExpired(t *testing.T) {
	m := auth.Middleware{Secret: testSecret}
	raw := signToken(t, "cashier-1", "cashier", "", time.Now().Add(-time.Hour))
	_, err := m.ParseActor(raw)
	require.Error(t, err)
}

func TestParseActorRejectsWrongIssuer(t *testing.T) {
	m := auth.Middleware{Secret: testSecret, Issuer: "pos"}
	raw := signToken(t, "cashier-1", "cashier", "someone-else", time.Now().Add(time.Hour))
	_, err := m.ParseActor(raw)
	require.Error(t, err)
}

func TestParseActorRejectsBadSignature(t *testing.T) {
	m := auth.Middleware{Secret: []byte("different-secret")}
	raw := signToken(t, "cashier-1", "cashier", "", time.Now().Add(time.Hour))
	_, err := m.ParseActor(raw)
	require.Error(t, err)
}

func TestRequireActor(t *testing.T) {
	m := auth.Middleware{Secret: testSecret}
	handler := m.RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := common.ActorFrom(r.Context())
		require.True(t, ok)
		require.Equal(t, "cashier-1", actor.ID)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/finalize", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "cashier-1", "cashier", "", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	m := auth.Middleware{Secret: testSecret}
	handler := m.RequireActor(auth.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "cashier-1", "cashier", "", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "manager-1", "admin", "", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
