package authority

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const balanceKeyPrefix = "croupier:balance:"

// WalletStore holds the canonical balance per user in redis. Committed stake
// is round-scoped state owned by the engine; only settlement deltas land here.
type WalletStore struct {
	client *redis.Client
	log    *zap.Logger
}

func NewWalletStore(client *redis.Client, log *zap.Logger) *WalletStore {
	return &WalletStore{client: client, log: log}
}

// Get returns the user's balance; a missing key reads as zero.
func (w *WalletStore) Get(ctx context.Context, userID string) (int64, error) {
	val, err := w.client.Get(ctx, balanceKeyPrefix+userID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet get %s: %w", userID, err)
	}
	return val, nil
}

// Set overwrites the user's balance. Admin and seeding use only.
func (w *WalletStore) Set(ctx context.Context, userID string, value int64) error {
	if err := w.client.Set(ctx, balanceKeyPrefix+userID, value, 0).Err(); err != nil {
		return fmt.Errorf("wallet set %s: %w", userID, err)
	}
	return nil
}

// ApplyDelta moves the balance atomically and returns the new value. A move
// that would go negative is rolled back.
func (w *WalletStore) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	newBalance, err := w.client.IncrBy(ctx, balanceKeyPrefix+userID, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("wallet delta %s: %w", userID, err)
	}
	if newBalance < 0 {
		w.client.IncrBy(ctx, balanceKeyPrefix+userID, -delta)
		return 0, fmt.Errorf("wallet delta %s: would go negative", userID)
	}
	return newBalance, nil
}
