package swap

import (
	"errors"
	"sync"
)

// ErrIntentNotFound is returned when no intent exists for a deposit address.
var ErrIntentNotFound = errors.New("swap: intent not found")

// Store holds in-flight intents keyed by deposit address. Intents are as
// ephemeral as the wallets they ride on, so memory is the right home.
type Store struct {
	mu      sync.RWMutex
	intents map[string]*Intent
}

// NewStore creates an empty intent store.
func NewStore() *Store {
	return &Store{intents: make(map[string]*Intent)}
}

// Put registers an intent under its deposit address.
func (s *Store) Put(intent *Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.DepositAddress] = intent
}

// Get returns the intent for a deposit address.
func (s *Store) Get(depositAddress string) (*Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[depositAddress]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// Delete removes an intent. Missing entries are ignored.
func (s *Store) Delete(depositAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, depositAddress)
}

// Len reports how many intents are tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.intents)
}
