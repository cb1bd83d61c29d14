// Package memory records discovery events in process memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []grant.DiscoveryEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event grant.DiscoveryEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []grant.DiscoveryEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]grant.DiscoveryEvent, len(p.events))
	copy(out, p.events)
	return out
}
