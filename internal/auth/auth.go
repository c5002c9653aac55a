package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shoestopper/checkout/internal/redisx"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Resolver is the identity capability: bearer token in, user id out. The
// auth protocol itself lives with the external auth collaborator.
type Resolver interface {
	Resolve(ctx context.Context, token string) (userID string, err error)
}

// RedisResolver looks sessions up where the auth collaborator writes them.
type RedisResolver struct{ RDB *redis.Client }

func (r *RedisResolver) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := r.RDB.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

type ctxKey struct{}

// UserID returns the authenticated user id set by Middleware, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
