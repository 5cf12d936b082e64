package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/dapurnia/backend-pos/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the opaque caller identity ("actor") from bearer
// tokens issued by the external auth system. Only identity and role are
// extracted; user management lives elsewhere.
type Middleware struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Authenticate attaches the actor to the request context when a valid
// token is present; anonymous requests pass through untouched.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActor enforces that a valid token is present.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole enforces that the already-authenticated actor holds the
// given role. Mount inside RequireActor.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := common.ActorFrom(r.Context())
			if !ok || !strings.EqualFold(actor.Role, role) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	raw := extractToken(r)
	if raw == "" {
		return r.Context(), errNoToken
	}
	actor, err := m.ParseActor(raw)
	if err != nil {
		return r.Context(), err
	}
	return common.WithActor(r.Context(), actor), nil
}

// ParseActor verifies the token signature and standard claims and maps
// the subject plus role claim into an Actor.
func (m Middleware) ParseActor(raw string) (common.Actor, error) {
	if len(m.Secret) == 0 {
		return common.Actor{}, errors.New("auth: secret not configured")
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, m.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return common.Actor{}, err
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(m.now)),
	}
	if m.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(m.ClockSkew))
	}
	if m.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.Issuer))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return common.Actor{}, err
	}
	actor := common.Actor{ID: tok.Subject()}
	if v, ok := tok.Get("role"); ok {
		if role, ok := v.(string); ok {
			actor.Role = role
		}
	}
	if actor.ID == "" {
		return common.Actor{}, errors.New("auth: token missing subject")
	}
	return actor, nil
}

func (m Middleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
