package relay

import (
	"sort"
	"sync"
)

// Presence is an advisory record of users believed to hold a live relay
// subscription. Being absent never blocks a publish.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{online: map[string]struct{}{}}
}

// SetOnline marks a user online.
func (p *Presence) SetOnline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = struct{}{}
}

// SetOffline marks a user offline.
func (p *Presence) SetOffline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
}

// IsOnline reports whether the user was last seen online.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns the ids of online users, sorted.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
