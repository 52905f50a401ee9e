package feed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/mtlprog/livefolio/internal/domain"
)

func TestSharedReferenceCounting(t *testing.T) {
	tr := newFakeTransport()
	var built atomic.Int32
	obs := newRecordingObserver()

	shared := NewShared(func() *Connection {
		built.Add(1)
		return newTestConnection(tr, obs)
	})

	if got := shared.State(); got != domain.HealthOffline {
		t.Fatalf("state with no references = %s, want offline", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := shared.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := shared.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	// The connection must outlive the context of the request that acquired it.
	cancel()

	if got := built.Load(); got != 1 {
		t.Errorf("connections built = %d, want 1", got)
	}
	if got := shared.Refs(); got != 2 {
		t.Errorf("refs = %d, want 2", got)
	}
	if got := shared.State(); got != domain.HealthConnecting {
		t.Errorf("state = %s, want connecting", got)
	}

	shared.Release()
	if got := shared.State(); got == domain.HealthOffline {
		t.Error("feed went offline while a reference is still held")
	}

	shared.Release()
	if got := shared.Refs(); got != 0 {
		t.Errorf("refs = %d, want 0", got)
	}
	if got := shared.State(); got != domain.HealthOffline {
		t.Errorf("state after last release = %s, want offline", got)
	}

	shared.Release()
	if got := shared.Refs(); got != 0 {
		t.Errorf("extra Release changed refs to %d", got)
	}

	if err := shared.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after teardown: %v", err)
	}
	defer shared.Release()
	if got := built.Load(); got != 2 {
		t.Errorf("connections built = %d, want 2 (fresh connection after teardown)", got)
	}
}
