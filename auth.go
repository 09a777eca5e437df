package treasury

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/twitchtv/twirp"
	"github.com/yiplee/go-cache"
	"golang.org/x/sync/singleflight"
)

func extractBearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

// handleAuth puts the subject of a valid HS256 bearer token into the request
// context. Requests without a token pass through anonymously.
func handleAuth(secret string) func(next http.Handler) http.Handler {
	var (
		claims = cache.New[string, *jwt.StandardClaims]()
		sf     singleflight.Group
		key    = []byte(secret)
	)

	parse := func(token string) (*jwt.StandardClaims, error) {
		v, err, _ := sf.Do(token, func() (interface{}, error) {
			if c, ok := claims.Get(token); ok {
				return c, nil
			}

			var c jwt.StandardClaims
			if _, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}

				return key, nil
			}); err != nil {
				return nil, err
			}

			claims.Set(token, &c)
			return &c, nil
		})
		if err != nil {
			return nil, err
		}

		return v.(*jwt.StandardClaims), nil
	}

	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}

		fn := func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			c, err := parse(token)
			if err != nil {
				renderErr(w, twirp.Unauthenticated.Error(err.Error()))
				return
			}

			// cached claims may have expired since they were parsed
			if err := c.Valid(); err != nil {
				renderErr(w, twirp.Unauthenticated.Error(err.Error()))
				return
			}

			if c.Subject == "" {
				renderErr(w, twirp.Unauthenticated.Error("token has no subject"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), c.Subject)))
		}

		return http.HandlerFunc(fn)
	}
}

// authorize checks that the authenticated actor acts as identity. It allows
// everything when auth is disabled.
func (s *Server) authorize(ctx context.Context, identity string) error {
	if s.cfg.JWTSecret == "" {
		return nil
	}

	actor, ok := ActorFrom(ctx)
	if !ok {
		return twirp.Unauthenticated.Error("auth required")
	}

	if NormalizeAddress(actor) != NormalizeAddress(identity) {
		return twirp.PermissionDenied.Error("token subject does not match the acting owner")
	}

	return nil
}
