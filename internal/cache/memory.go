package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/model"
)

// entry is one slot of the in-memory store. expires.IsZero means no TTL.
type entry struct {
	value   interface{}
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// ttlMap is a generic expiring map, adapted from the teacher's TTLCache:
// same mutex-guarded map plus a background sweep goroutine, minus the
// LRU/hit-count bookkeeping this domain has no use for.
type ttlMap struct {
	mu      sync.RWMutex
	data    map[string]entry
	stopCh  chan struct{}
	stopped bool
}

func newTTLMap(sweepInterval time.Duration) *ttlMap {
	m := &ttlMap{
		data:   make(map[string]entry),
		stopCh: make(chan struct{}),
	}
	go m.sweepLoop(sweepInterval)
	return m
}

func (m *ttlMap) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *ttlMap) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
		}
	}
}

func (m *ttlMap) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.value, true
}

func (m *ttlMap) Set(key string, value interface{}, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = entry{value: value, expires: expires}
}

func (m *ttlMap) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// MemoryStore is the in-process fake backend; spec section 9 calls for tests
// to exercise the cache behind its interface rather than against a live
// Redis instance.
type MemoryStore struct {
	m *ttlMap
}

// NewMemoryStore constructs an in-memory Store with a background sweep of
// expired keys every sweepInterval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	return &MemoryStore{m: newTTLMap(sweepInterval)}
}

func (s *MemoryStore) GetOrderBook(_ context.Context, symbol, venueID string) (model.OrderBook, bool, error) {
	v, ok := s.m.Get(OrderBookKey(symbol, venueID))
	if !ok {
		return model.OrderBook{}, false, nil
	}
	book, ok := v.(model.OrderBook)
	if !ok {
		return model.OrderBook{}, false, nil
	}
	return book, true, nil
}

func (s *MemoryStore) SetOrderBook(_ context.Context, symbol, venueID string, book model.OrderBook, ttl time.Duration) error {
	s.m.Set(OrderBookKey(symbol, venueID), book, ttl)
	return nil
}

func (s *MemoryStore) GetDeal(_ context.Context, key string) (model.DealState, error) {
	v, ok := s.m.Get(key)
	if !ok {
		return model.DefaultDealState(time.Now()), nil
	}
	state, ok := v.(model.DealState)
	if !ok {
		return model.DefaultDealState(time.Now()), nil
	}
	return state, nil
}

func (s *MemoryStore) SetDeal(_ context.Context, key string, state model.DealState, ttl time.Duration) error {
	s.m.Set(key, state, ttl)
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, coin string) (decimal.Decimal, error) {
	v, ok := s.m.Get(BalanceKey(coin))
	if !ok {
		return decimal.Zero, nil
	}
	amount, ok := v.(decimal.Decimal)
	if !ok {
		return decimal.Zero, nil
	}
	return amount, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, coin string, amount decimal.Decimal) error {
	s.m.Set(BalanceKey(coin), amount, 0)
	return nil
}

func (s *MemoryStore) GetLastUpdateID(_ context.Context) (int64, bool, error) {
	v, ok := s.m.Get(LastUpdateIDKey)
	if !ok {
		return 0, false, nil
	}
	id, ok := v.(int64)
	if !ok {
		return 0, false, nil
	}
	return id, true, nil
}

func (s *MemoryStore) SetLastUpdateID(_ context.Context, id int64) error {
	s.m.Set(LastUpdateIDKey, id, 0)
	return nil
}

func (s *MemoryStore) Close() error {
	s.m.Stop()
	return nil
}
