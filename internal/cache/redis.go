package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/model"
)

// RedisStore is the remote backend for multi-process deployments (spec
// section 4.2: "implementer chooses embedded or remote; both... supported").
// Grounded on the teacher's CacheConfig.Redis wiring in
// internal/application/config.go.
type RedisStore struct {
	rdb *redis.Client
}

// RedisConfig mirrors the teacher's nested Redis config fields.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewRedisStoreWithClient wraps an existing client, used by tests with
// go-redis/redismock.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetOrderBook(ctx context.Context, symbol, venueID string) (model.OrderBook, bool, error) {
	raw, err := s.rdb.Get(ctx, OrderBookKey(symbol, venueID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.OrderBook{}, false, nil
	}
	if err != nil {
		return model.OrderBook{}, false, err
	}
	var book model.OrderBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return model.OrderBook{}, false, err
	}
	return book, true, nil
}

func (s *RedisStore) SetOrderBook(ctx context.Context, symbol, venueID string, book model.OrderBook, ttl time.Duration) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, OrderBookKey(symbol, venueID), raw, ttl).Err()
}

func (s *RedisStore) GetDeal(ctx context.Context, key string) (model.DealState, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DefaultDealState(time.Now()), nil
	}
	if err != nil {
		return model.DealState{}, err
	}
	var state model.DealState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.DealState{}, err
	}
	return state, nil
}

func (s *RedisStore) SetDeal(ctx context.Context, key string, state model.DealState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisStore) GetBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	raw, err := s.rdb.Get(ctx, BalanceKey(coin)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (s *RedisStore) SetBalance(ctx context.Context, coin string, amount decimal.Decimal) error {
	return s.rdb.Set(ctx, BalanceKey(coin), amount.String(), 0).Err()
}

func (s *RedisStore) GetLastUpdateID(ctx context.Context) (int64, bool, error) {
	raw, err := s.rdb.Get(ctx, LastUpdateIDKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *RedisStore) SetLastUpdateID(ctx context.Context, id int64) error {
	return s.rdb.Set(ctx, LastUpdateIDKey, id, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
