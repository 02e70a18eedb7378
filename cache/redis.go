package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"card-token-bridge/bridge"

	"github.com/redis/go-redis/v9"
)

const (
	// Pending entries only need to outlive one provider attempt.
	PendingExpiry = 2 * time.Minute
	// Completed entries stay collectable for a day.
	CompletedExpiry = 24 * time.Hour
)

// ErrNotFound is returned by Fetch for an unknown or expired submission.
var ErrNotFound = errors.New("cache: submission not found")

// Mailbox is the inbound delivery point for embedded applications that collect their
// tokens over HTTP.
type Mailbox interface {
	bridge.Receiver
	bridge.FailureReceiver
	// MarkPending records a submission as in flight. It never overwrites a completed entry.
	MarkPending(ctx context.Context, submissionID string) error
	Fetch(ctx context.Context, submissionID string) (bridge.Delivery, error)
	Ping(ctx context.Context) error
}

// RedisStore implements Mailbox on top of Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis client instance.
func NewRedisStore(addr string, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisStoreFromURL parses a redis:// URL and checks the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	store := &RedisStore{client: redis.NewClient(opt)}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis PING error: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// MarkPending uses SET NX so a delivery that already landed is never reset.
func (r *RedisStore) MarkPending(ctx context.Context, submissionID string) error {
	payload, err := json.Marshal(bridge.Delivery{SubmissionID: submissionID, Status: bridge.StatusPending})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := r.client.SetNX(ctx, key(submissionID), payload, PendingExpiry).Err(); err != nil {
		return fmt.Errorf("redis SETNX error: %w", err)
	}
	return nil
}

func (r *RedisStore) ReceiveToken(ctx context.Context, submissionID, tokenID string) error {
	return r.complete(ctx, bridge.Delivery{
		SubmissionID: submissionID,
		Status:       bridge.StatusSucceeded,
		TokenID:      tokenID,
	})
}

func (r *RedisStore) ReceiveFailure(ctx context.Context, submissionID string, failure bridge.Failure) error {
	return r.complete(ctx, bridge.Delivery{
		SubmissionID: submissionID,
		Status:       bridge.StatusFailed,
		Error:        &failure,
	})
}

func (r *RedisStore) complete(ctx context.Context, d bridge.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := r.client.Set(ctx, key(d.SubmissionID), payload, CompletedExpiry).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	return nil
}

func (r *RedisStore) Fetch(ctx context.Context, submissionID string) (bridge.Delivery, error) {
	raw, err := r.client.Get(ctx, key(submissionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return bridge.Delivery{}, ErrNotFound
	}
	if err != nil {
		return bridge.Delivery{}, fmt.Errorf("redis GET error: %w", err)
	}

	var d bridge.Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return bridge.Delivery{}, fmt.Errorf("unmarshal delivery: %w", err)
	}
	return d, nil
}

func key(submissionID string) string {
	return fmt.Sprintf("tok:%s", submissionID)
}
