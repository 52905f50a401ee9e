package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/livefolio/internal/domain"
)

type mockClient struct {
	mu        sync.Mutex
	sets      map[string][]byte
	ttls      map[string]time.Duration
	published []string
	setErr    error
}

func newMockClient() *mockClient {
	return &mockClient{sets: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.sets[key] = value.([]byte)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockClient) Publish(_ context.Context, channel string, _ any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, channel)
	return redis.NewIntResult(1, nil)
}

func (m *mockClient) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func TestPublisherPublish(t *testing.T) {
	client := newMockClient()
	p := NewPublisher(client, "acc-1")

	result := domain.ValuationResult{
		TotalValue: decimal.NewFromInt(102000),
		FeedHealth: domain.HealthLive,
		Sequence:   3,
	}
	if err := p.Publish(context.Background(), result); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, ok := client.sets["livefolio:valuation:acc-1"]
	if !ok {
		t.Fatalf("key not set, have %v", client.sets)
	}
	if got := client.ttls["livefolio:valuation:acc-1"]; got != TTL {
		t.Errorf("ttl = %v, want %v", got, TTL)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if msg.Account != "acc-1" || msg.Result.Sequence != 3 || !msg.Result.TotalValue.Equal(decimal.NewFromInt(102000)) {
		t.Errorf("payload = %+v", msg)
	}
	if len(client.published) != 1 || client.published[0] != Channel {
		t.Errorf("published = %v, want [%s]", client.published, Channel)
	}
}

func TestPublisherPublishStoreFailure(t *testing.T) {
	client := newMockClient()
	client.setErr = errors.New("READONLY")
	p := NewPublisher(client, "acc-1")

	if err := p.Publish(context.Background(), domain.ValuationResult{}); err == nil {
		t.Fatal("expected error")
	}
	if len(client.published) != 0 {
		t.Error("must not publish when the store fails")
	}
}

func TestPublisherRunStopsWhenUpdatesClose(t *testing.T) {
	client := newMockClient()
	p := NewPublisher(client, "acc-1")

	updates := make(chan domain.ValuationResult, 2)
	updates <- domain.ValuationResult{Sequence: 1}
	updates <- domain.ValuationResult{Sequence: 2}
	close(updates)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after updates closed")
	}
	if got := client.publishCount(); got != 2 {
		t.Errorf("published %d, want 2", got)
	}
}

func TestPublisherRunStopsOnCancel(t *testing.T) {
	p := NewPublisher(newMockClient(), "acc-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, make(chan domain.ValuationResult))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
