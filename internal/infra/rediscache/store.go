package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"salon-billing/internal/domain/subscriptions"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// cachedRow keeps the version, which the row's JSON form omits.
type cachedRow struct {
	Subscription subscriptions.Subscription `json:"subscription"`
	Version      int                        `json:"version"`
}

// Store serves List calls that select a single salon or a single customer
// from redis, falling back to the wrapped store. Entries live under the same
// keys the Invalidator deletes.
type Store struct {
	subscriptions.Store
	client Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewStore(inner subscriptions.Store, client Client, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		Store:  inner,
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "view_cache").Logger(),
	}
}

func (s *Store) List(ctx context.Context, f subscriptions.Filter) ([]subscriptions.Subscription, error) {
	key, ok := viewKey(f)
	if !ok {
		return s.Store.List(ctx, f)
	}

	if rows, hit := s.load(ctx, key); hit {
		return rows, nil
	}

	rows, err := s.Store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, rows)
	return rows, nil
}

func (s *Store) load(ctx context.Context, key string) ([]subscriptions.Subscription, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("view cache read failed")
		}
		return nil, false
	}
	var cached []cachedRow
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("view cache entry unreadable")
		return nil, false
	}
	rows := make([]subscriptions.Subscription, len(cached))
	for i, c := range cached {
		rows[i] = c.Subscription
		rows[i].Version = c.Version
	}
	return rows, true
}

func (s *Store) save(ctx context.Context, key string, rows []subscriptions.Subscription) {
	cached := make([]cachedRow, len(rows))
	for i := range rows {
		cached[i] = cachedRow{Subscription: rows[i], Version: rows[i].Version}
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("view cache write failed")
	}
}

// viewKey reports the cache key for filters that select exactly one salon or
// one customer with no further narrowing.
func viewKey(f subscriptions.Filter) (string, bool) {
	narrowed := len(f.Statuses) > 0 || f.StripeSubscriptionID != "" ||
		f.CancelAtPeriodEnd != nil || f.PeriodEndBefore != nil || f.Limit > 0
	switch {
	case narrowed:
		return "", false
	case f.SalonID != "" && f.CustomerID == "":
		return subscriptions.SalonKey(f.SalonID), true
	case f.CustomerID != "" && f.SalonID == "":
		return subscriptions.CustomerKey(f.CustomerID), true
	}
	return "", false
}
