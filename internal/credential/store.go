// Package credential holds short-lived per-platform credentials pushed in
// over the command surface. Nothing here is ever persisted; credentials
// live only for the daemon's lifetime.
package credential

import (
	"strings"
	"sync"
	"time"

	"github.com/chatsync-dev/chatsync/internal/bus"
)

// Store keeps one credential per platform in memory.
type Store struct {
	mu    sync.RWMutex
	creds map[string]string
	bus   *bus.Bus
}

// NewStore creates an empty credential store.
func NewStore(b *bus.Bus) *Store {
	return &Store{
		creds: make(map[string]string),
		bus:   b,
	}
}

// Set stores a credential and announces it on the bus. The sync engine
// listens for the announcement and auto-starts a run, so the first sync
// needs no manual trigger.
func (s *Store) Set(platform, credential string) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return
	}
	s.mu.Lock()
	s.creds[platform] = credential
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindCredentialSet,
			Timestamp: time.Now(),
			Payload:   platform,
		})
	}
}

// Get returns the platform's credential, if one was set this session.
func (s *Store) Get(platform string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[platform]
	return c, ok
}

// Clear drops the platform's credential.
func (s *Store) Clear(platform string) {
	s.mu.Lock()
	delete(s.creds, platform)
	s.mu.Unlock()
}

// Preview returns a masked rendering of the credential safe to show in a
// UI, and whether a credential exists at all.
func (s *Store) Preview(platform string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[platform]
	if !ok {
		return "", false
	}
	if len(c) <= 12 {
		return "****", true
	}
	return c[:4] + "…" + c[len(c)-4:], true
}
