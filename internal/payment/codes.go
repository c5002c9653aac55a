package payment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shoestopper/checkout/internal/redisx"
)

// CodeStore holds single-use, time-limited confirmation codes.
type CodeStore interface {
	Put(ctx context.Context, orderID, transactionID, code string) error
	// Consume returns true at most once per stored code: the DEL result
	// decides the winner when two confirms race.
	Consume(ctx context.Context, orderID, transactionID, code string) (bool, error)
}

type RedisCodeStore struct {
	RDB *redis.Client
	TTL time.Duration
}

func (s *RedisCodeStore) Put(ctx context.Context, orderID, transactionID, code string) error {
	key := fmt.Sprintf(redisx.KeyPaymentCode, orderID, transactionID)
	return s.RDB.Set(ctx, key, code, s.TTL).Err()
}

func (s *RedisCodeStore) Consume(ctx context.Context, orderID, transactionID, code string) (bool, error) {
	key := fmt.Sprintf(redisx.KeyPaymentCode, orderID, transactionID)
	stored, err := s.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil // never issued, expired, or already consumed
	}
	if err != nil {
		return false, err
	}
	if stored != code {
		return false, nil
	}
	n, err := s.RDB.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
