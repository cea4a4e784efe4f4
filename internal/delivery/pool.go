package delivery

import (
	"errors"
	"sync"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
)

// ProviderClient is the part of the provider SDK the engine uses.
type ProviderClient interface {
	Send(m *mail.SGMailV3) (*rest.Response, error)
}

var ErrMissingAPIKey = errors.New("no provider API key configured")

type pooledClient struct {
	client    ProviderClient
	createdAt time.Time
}

// ClientPool holds provider clients keyed by credential, bounded in size,
// selected round-robin and recycled after a TTL so connections do not live
// forever.
type ClientPool struct {
	MaxSize int
	TTL     time.Duration

	// Factory builds a client for a credential; tests swap it out.
	Factory func(apiKey string) ProviderClient

	mu      sync.Mutex
	clients map[string][]pooledClient
	uses    map[string]int
	now     func() time.Time
}

func NewClientPool(maxSize int, ttl time.Duration) *ClientPool {
	return &ClientPool{
		MaxSize: maxSize,
		TTL:     ttl,
		Factory: func(apiKey string) ProviderClient {
			return sendgrid.NewSendClient(apiKey)
		},
		clients: map[string][]pooledClient{},
		uses:    map[string]int{},
		now:     time.Now,
	}
}

// Acquire returns a pooled client for the credential, creating one when the
// pool has room. Expired clients are evicted first.
func (p *ClientPool) Acquire(apiKey string) (ProviderClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictExpired(apiKey)

	// Below capacity a fresh client is added; at capacity acquisition
	// rotates round-robin over the existing ones.
	if pool := p.clients[apiKey]; len(pool) >= p.MaxSize {
		idx := p.uses[apiKey] % len(pool)
		p.uses[apiKey]++
		return pool[idx].client, nil
	}

	client := p.Factory(apiKey)
	p.clients[apiKey] = append(p.clients[apiKey], pooledClient{client: client, createdAt: p.now()})
	p.uses[apiKey]++
	log.Debugf("created provider client (pool size %d)", len(p.clients[apiKey]))
	return client, nil
}

func (p *ClientPool) evictExpired(apiKey string) {
	pool := p.clients[apiKey]
	if len(pool) == 0 {
		return
	}
	kept := pool[:0]
	cutoff := p.now().Add(-p.TTL)
	for _, c := range pool {
		if c.createdAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	if len(kept) < len(pool) {
		log.Debugf("evicted %d expired provider clients", len(pool)-len(kept))
	}
	p.clients[apiKey] = kept
}

// PoolStats is a monitoring snapshot for one credential.
type PoolStats struct {
	Size          int   `json:"pool_size"`
	TotalRequests int   `json:"total_requests"`
	OldestAge     int64 `json:"oldest_client_age_seconds"`
}

// Stats reports per-credential pool state, with credentials masked.
func (p *ClientPool) Stats() map[string]PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := map[string]PoolStats{}
	for key, pool := range p.clients {
		s := PoolStats{Size: len(pool), TotalRequests: p.uses[key]}
		for _, c := range pool {
			if age := int64(p.now().Sub(c.createdAt).Seconds()); age > s.OldestAge {
				s.OldestAge = age
			}
		}
		stats[maskKey(key)] = s
	}
	return stats
}

func maskKey(key string) string {
	if len(key) > 8 {
		return "..." + key[len(key)-8:]
	}
	return "***"
}
