// Package cache shares reconciled valuations with other processes through Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtlprog/livefolio/internal/domain"
)

const (
	// Channel is the pub/sub channel every published valuation is sent on.
	Channel = "livefolio:valuation"
	// TTL bounds how long the stored valuation outlives its publisher.
	TTL = 5 * time.Minute

	keyPrefix      = "livefolio:valuation:"
	publishTimeout = 5 * time.Second
)

// Client is the subset of the Redis API the publisher uses. *redis.Client implements it.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the payload stored and published for an account.
type Message struct {
	Account string                 `json:"account"`
	Result  domain.ValuationResult `json:"result"`
}

// Publisher stores the latest valuation of one account and announces it on Channel.
type Publisher struct {
	client  Client
	account string
}

// NewPublisher creates a publisher for account.
func NewPublisher(client Client, account string) *Publisher {
	return &Publisher{client: client, account: account}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Key returns the key holding the account's latest valuation.
func (p *Publisher) Key() string {
	return keyPrefix + p.account
}

// Publish stores result under Key with TTL and publishes it on Channel.
func (p *Publisher) Publish(ctx context.Context, result domain.ValuationResult) error {
	payload, err := json.Marshal(Message{Account: p.account, Result: result})
	if err != nil {
		return fmt.Errorf("encoding valuation: %w", err)
	}

	if err := p.client.Set(ctx, p.Key(), payload, TTL).Err(); err != nil {
		return fmt.Errorf("storing valuation: %w", err)
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing valuation: %w", err)
	}
	return nil
}

// Run publishes every result received on updates until ctx is cancelled or updates is closed.
// Failures are logged; the next result is tried regardless.
func (p *Publisher) Run(ctx context.Context, updates <-chan domain.ValuationResult) {
	slog.Info("RedisPublisher: starting", "key", p.Key(), "channel", Channel)

	for {
		select {
		case <-ctx.Done():
			slog.Info("RedisPublisher: shutting down")
			return
		case result, ok := <-updates:
			if !ok {
				slog.Info("RedisPublisher: updates closed")
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pubCtx, result); err != nil {
				slog.Warn("RedisPublisher: publish failed", "sequence", result.Sequence, "error", err)
			}
			cancel()
		}
	}
}
