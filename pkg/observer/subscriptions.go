// Copyright 2025 Certen Protocol
//
// Webhook subscriptions (§4.12: "subscribe to push notifications"). The
// registry and its delivery fan-out mirror pkg/firestore's sync service: a
// best-effort, out-of-band broadcast channel sitting alongside the
// authoritative event log, never gating it.

package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/archon72/conclave/pkg/eventstore"
	"github.com/archon72/conclave/pkg/firestore"
)

// SubscriptionStore persists webhook registrations.
type SubscriptionStore interface {
	Register(ctx context.Context, sub WebhookSubscription) error
	Unregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]WebhookSubscription, error)
}

// MemorySubscriptionStore is the in-process default.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]WebhookSubscription
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[string]WebhookSubscription)}
}

func (m *MemorySubscriptionStore) Register(ctx context.Context, sub WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemorySubscriptionStore) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

func (m *MemorySubscriptionStore) List(ctx context.Context) ([]WebhookSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WebhookSubscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out, nil
}

// FirestoreSubscriptionStore persists the registry to Firestore, the same
// no-op-when-disabled client pkg/firestore.Client wraps elsewhere, so a
// webhook registration survives process restarts in production and costs
// nothing in local/dev mode. It also keeps an in-memory mirror: dispatch
// reads from memory on the hot path and never blocks on a round trip.
type FirestoreSubscriptionStore struct {
	client     *firestore.Client
	collection string
	mem        *MemorySubscriptionStore
	logger     *log.Logger
}

func NewFirestoreSubscriptionStore(client *firestore.Client, logger *log.Logger) *FirestoreSubscriptionStore {
	if logger == nil {
		logger = log.New(log.Writer(), "[ObserverSubscriptions] ", log.LstdFlags)
	}
	return &FirestoreSubscriptionStore{
		client:     client,
		collection: "observerSubscriptions",
		mem:        NewMemorySubscriptionStore(),
		logger:     logger,
	}
}

func (f *FirestoreSubscriptionStore) Register(ctx context.Context, sub WebhookSubscription) error {
	if err := f.mem.Register(ctx, sub); err != nil {
		return err
	}
	if f.client == nil || !f.client.IsEnabled() {
		return nil
	}
	coll := f.client.Collection(f.collection)
	if coll == nil {
		return nil
	}
	_, err := coll.Doc(sub.ID).Set(ctx, map[string]interface{}{
		"url":         sub.URL,
		"event_types": sub.EventTypes,
		"created_at":  sub.CreatedAt,
	})
	if err != nil {
		f.logger.Printf("failed to persist subscription %s: %v", sub.ID, err)
		return fmt.Errorf("observer: persist subscription: %w", err)
	}
	return nil
}

func (f *FirestoreSubscriptionStore) Unregister(ctx context.Context, id string) error {
	if err := f.mem.Unregister(ctx, id); err != nil {
		return err
	}
	if f.client == nil || !f.client.IsEnabled() {
		return nil
	}
	doc := f.client.Doc(f.collection + "/" + id)
	if doc == nil {
		return nil
	}
	if _, err := doc.Delete(ctx); err != nil {
		f.logger.Printf("failed to delete subscription %s: %v", id, err)
		return fmt.Errorf("observer: delete subscription: %w", err)
	}
	return nil
}

func (f *FirestoreSubscriptionStore) List(ctx context.Context) ([]WebhookSubscription, error) {
	return f.mem.List(ctx)
}

// Poster is the narrow HTTP surface Dispatcher needs, so tests can stub it.
type Poster interface {
	Post(url, contentType string, body *bytes.Reader) (*http.Response, error)
}

type httpPoster struct{ client *http.Client }

func (p httpPoster) Post(url, contentType string, body *bytes.Reader) (*http.Response, error) {
	return p.client.Post(url, contentType, body)
}

// DispatchBackoff configures the retry schedule for one subscriber's
// delivery attempts (mirrors pkg/checkpoint.BackoffConfig's shape; not
// imported, since the two packages' retry units are not the same kind of
// thing and this is a three-field struct).
type DispatchBackoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

func (b DispatchBackoff) delay(attempt int) time.Duration {
	d := b.Base << uint(attempt)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Dispatcher fans an event out to every matching subscription, bounded to
// MaxConcurrency in-flight deliveries, retrying each delivery independently.
// Delivery failures are logged and dropped; push notifications are
// best-effort and never gate the authoritative log (§4.12, §5 backpressure:
// "operational telemetry only" may be shed — push delivery is the same
// class of signal).
type Dispatcher struct {
	Store          SubscriptionStore
	Poster         Poster
	Backoff        DispatchBackoff
	MaxConcurrency int
	Sleep          func(time.Duration)
	Logger         *log.Logger
}

func NewDispatcher(store SubscriptionStore, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		Store:          store,
		Poster:         httpPoster{client: client},
		Backoff:        DispatchBackoff{Base: 500 * time.Millisecond, Max: 5 * time.Second, MaxRetries: 3},
		MaxConcurrency: 8,
		Sleep:          time.Sleep,
		Logger:         log.New(log.Writer(), "[ObserverDispatch] ", log.LstdFlags),
	}
}

// Dispatch delivers ev to every subscription whose filter matches it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *eventstore.Event) error {
	subs, err := d.Store.List(ctx)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, d.maxConcurrency())
	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.matches(ev) {
			continue
		}
		sub := sub
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, sub, ev)
		}()
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) maxConcurrency() int {
	if d.MaxConcurrency <= 0 {
		return 1
	}
	return d.MaxConcurrency
}

func (d *Dispatcher) deliver(ctx context.Context, sub WebhookSubscription, ev *eventstore.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		d.Logger.Printf("subscription %s: marshal event: %v", sub.ID, err)
		return
	}

	maxRetries := d.Backoff.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := d.Poster.Post(sub.URL, "application/json", bytes.NewReader(body))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return
			}
			err = fmt.Errorf("webhook responded %d", resp.StatusCode)
		}
		if attempt == maxRetries {
			d.Logger.Printf("subscription %s: delivery failed after %d attempts: %v", sub.ID, attempt+1, err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
			d.Sleep(d.Backoff.delay(attempt))
		}
	}
}
