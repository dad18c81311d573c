package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Factory constructs a Client for venueID, given whatever credentials were
// found in the environment. Registered per venue family by main.
type Factory func(venueID string, creds Credentials) (Client, error)

// Registry owns venue clients, serializes their setup, and exposes pure
// queries over the configured and initialized venue sets. Grounded on the
// teacher's circuit.Manager / ratelimit.Manager map-of-providers idiom.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	clients   map[string]Client
	setupOnce map[string]*sync.Once
	available map[string]struct{}
}

// NewRegistry constructs an empty registry. availableIDs is every venue
// listed in configuration for any configured symbol (spec section 4.1
// available_ids).
func NewRegistry(availableIDs []string) *Registry {
	available := make(map[string]struct{}, len(availableIDs))
	for _, id := range availableIDs {
		available[id] = struct{}{}
	}
	return &Registry{
		factories: make(map[string]Factory),
		clients:   make(map[string]Client),
		setupOnce: make(map[string]*sync.Once),
		available: available,
	}
}

// Register associates a construction factory with a venue ID. Must happen
// before Setup is called for that venue.
func (r *Registry) Register(venueID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[venueID] = factory
	if _, ok := r.setupOnce[venueID]; !ok {
		r.setupOnce[venueID] = &sync.Once{}
	}
}

// Setup constructs the client for venueID if not already constructed.
// Idempotent: concurrent calls for the same venueID return the same client
// (spec section 4.1).
func (r *Registry) Setup(ctx context.Context, venueID string) (Client, error) {
	r.mu.Lock()
	once, ok := r.setupOnce[venueID]
	factory := r.factories[venueID]
	r.mu.Unlock()
	if !ok || factory == nil {
		return nil, fmt.Errorf("venue registry: no factory registered for %q", venueID)
	}

	var setupErr error
	once.Do(func() {
		creds := LoadCredentials(venueID)
		client, err := factory(venueID, creds)
		if err != nil {
			setupErr = fmt.Errorf("venue registry: setup %q: %w", venueID, err)
			return
		}
		if _, err := client.LoadMarkets(ctx); err != nil {
			log.Warn().Str("venue", venueID).Err(err).Msg("load markets failed during setup")
		}
		r.mu.Lock()
		r.clients[venueID] = client
		r.mu.Unlock()
	})

	r.mu.Lock()
	client, ready := r.clients[venueID]
	r.mu.Unlock()
	if !ready {
		if setupErr != nil {
			return nil, setupErr
		}
		return nil, fmt.Errorf("venue registry: %q not yet initialized", venueID)
	}
	return client, nil
}

// AvailableIDs returns every venue listed in configuration.
func (r *Registry) AvailableIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.available))
	for id := range r.available {
		ids = append(ids, id)
	}
	return ids
}

// AuthenticatedIDs returns the subset of initialized venues whose credentials
// were present at setup.
func (r *Registry) AuthenticatedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.clients {
		if c.Authenticated() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Exchange looks up an already-initialized client, returning false when not
// yet set up.
func (r *Registry) Exchange(id string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// InitializedIDs returns every venue with a live client, the set the Deal
// Controller enumerates pairs over.
func (r *Registry) InitializedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll best-effort closes every initialized client. Cooperative with
// in-flight ingestion tasks: callers must ensure those tasks have observed
// the shutdown signal and released their client references first (spec
// section 5).
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			log.Warn().Str("venue", c.ID()).Err(err).Msg("close venue client failed")
		}
	}
}
