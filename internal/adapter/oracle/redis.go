// Package oracle serves NFT prices published into Redis hashes.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	domain "nftlend-backend/internal/domain/oracle"
	"nftlend-backend/internal/observability/metrics"
	"nftlend-backend/pkg/u256"
)

const keyPrefix = "nftlend:price:"

// RedisOracle keeps one hash per token ("amount", "updated_at") and one per
// collection for the floor price.
type RedisOracle struct {
	rdb     *redis.Client
	maxAge  time.Duration
	now     func() time.Time
	metrics *metrics.LendingMetrics
}

var _ domain.PriceOracle = (*RedisOracle)(nil)

func NewRedisOracle(rdb *redis.Client, maxAge time.Duration) *RedisOracle {
	return &RedisOracle{rdb: rdb, maxAge: maxAge, now: time.Now, metrics: metrics.Lending()}
}

// SetNowFunc overrides the clock used for staleness checks.
func (o *RedisOracle) SetNowFunc(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

func tokenKey(contract common.Address, tokenID u256.Int) string {
	return keyPrefix + strings.ToLower(contract.Hex()) + ":" + tokenID.String()
}

func collectionKey(contract common.Address) string {
	return keyPrefix + strings.ToLower(contract.Hex()) + ":collection"
}

// GetNFTPrice returns the token price, or the collection price when the token
// has none. A stale token price does not fall back.
func (o *RedisOracle) GetNFTPrice(ctx context.Context, contract common.Address, tokenID u256.Int) (u256.Int, error) {
	p, err := o.read(ctx, tokenKey(contract, tokenID))
	if errors.Is(err, domain.ErrPriceNotFound) {
		p, err = o.read(ctx, collectionKey(contract))
	}
	if err != nil {
		return u256.Zero, err
	}
	if o.maxAge > 0 && o.now().Unix()-p.UpdatedAt > int64(o.maxAge/time.Second) {
		o.metrics.ObserveOracleStale()
		return u256.Zero, fmt.Errorf("%w: %s updated at %d", domain.ErrStalePrice, contract.Hex(), p.UpdatedAt)
	}
	return p.Amount, nil
}

func (o *RedisOracle) read(ctx context.Context, key string) (*domain.Price, error) {
	fields, err := o.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrPriceNotFound
	}
	amount, err := u256.Parse(fields["amount"])
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", key, err)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("price %s: invalid updated_at: %w", key, err)
	}
	return &domain.Price{Amount: amount, UpdatedAt: updated}, nil
}

// Publish stores p, stamping it with the current time. Authorization is the
// caller's concern.
func (o *RedisOracle) Publish(ctx context.Context, p domain.Price) (*domain.Price, error) {
	if p.Amount.IsZero() {
		return nil, domain.ErrZeroPrice
	}
	key := collectionKey(p.Contract)
	if p.TokenID != nil {
		key = tokenKey(p.Contract, *p.TokenID)
	}
	p.UpdatedAt = o.now().Unix()
	if err := o.rdb.HSet(ctx, key, map[string]any{
		"amount":     p.Amount.String(),
		"updated_at": strconv.FormatInt(p.UpdatedAt, 10),
	}).Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a published price.
func (o *RedisOracle) Delete(ctx context.Context, contract common.Address, tokenID *u256.Int) error {
	key := collectionKey(contract)
	if tokenID != nil {
		key = tokenKey(contract, *tokenID)
	}
	return o.rdb.Del(ctx, key).Err()
}
