package delivery

import (
	"errors"
	"testing"
	"time"
)

func TestPoolAcquireRequiresKey(t *testing.T) {
	pool := NewClientPool(2, time.Minute)
	if _, err := pool.Acquire(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestPoolBoundedGrowthAndRoundRobin(t *testing.T) {
	created := 0
	pool := NewClientPool(2, time.Minute)
	pool.Factory = func(string) ProviderClient {
		created++
		return &fakeClient{}
	}

	seen := map[ProviderClient]int{}
	for i := 0; i < 6; i++ {
		c, err := pool.Acquire("key")
		if err != nil {
			t.Fatal(err)
		}
		seen[c]++
	}

	if created != 2 {
		t.Fatalf("created %d clients, want 2 (bounded by pool size)", created)
	}
	if len(seen) != 2 {
		t.Fatalf("acquired %d distinct clients, want 2", len(seen))
	}
	// 6 acquires over 2 clients: round-robin keeps usage balanced.
	for c, n := range seen {
		if n != 3 {
			t.Errorf("client %p used %d times, want 3", c, n)
		}
	}
}

func TestPoolEvictsExpiredClients(t *testing.T) {
	created := 0
	now := time.Now()
	pool := NewClientPool(1, time.Minute)
	pool.Factory = func(string) ProviderClient {
		created++
		return &fakeClient{}
	}
	pool.now = func() time.Time { return now }

	first, err := pool.Acquire("key")
	if err != nil {
		t.Fatal(err)
	}

	// Within the TTL the same client is reused.
	again, _ := pool.Acquire("key")
	if again != first {
		t.Error("client replaced before TTL expiry")
	}

	now = now.Add(2 * time.Minute)
	replaced, _ := pool.Acquire("key")
	if replaced == first {
		t.Error("expired client not evicted")
	}
	if created != 2 {
		t.Errorf("created %d clients, want 2", created)
	}
}

func TestPoolKeysAreIsolated(t *testing.T) {
	pool := NewClientPool(1, time.Minute)
	pool.Factory = func(string) ProviderClient { return &fakeClient{} }

	a, _ := pool.Acquire("key-a")
	b, _ := pool.Acquire("key-b")
	if a == b {
		t.Error("different credentials share a client")
	}
}

func TestPoolStatsMasksCredentials(t *testing.T) {
	pool := NewClientPool(1, time.Minute)
	pool.Factory = func(string) ProviderClient { return &fakeClient{} }
	pool.Acquire("SG.super-secret-key")

	stats := pool.Stats()
	if len(stats) != 1 {
		t.Fatalf("stats entries = %d, want 1", len(stats))
	}
	for key, s := range stats {
		if key != "...cret-key" {
			t.Errorf("credential not masked: %q", key)
		}
		if s.Size != 1 || s.TotalRequests != 1 {
			t.Errorf("unexpected stats: %+v", s)
		}
	}
}
