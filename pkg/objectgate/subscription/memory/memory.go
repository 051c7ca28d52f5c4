package memory

import (
	"context"
	"sync"

	"github.com/tendant/object-gate/pkg/objectgate/subscription"
)

type key struct {
	subscriber string
	creator    string
}

// Store is an in-memory implementation of objectgate.SubscriptionStore
type Store struct {
	mu   sync.RWMutex
	subs map[key]subscription.Status
}

// New creates an empty subscription store
func New() *Store {
	return &Store{subs: make(map[key]subscription.Status)}
}

// Put creates or replaces a subscription record
func (s *Store) Put(ctx context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[key{sub.SubscriberID, sub.CreatorID}] = sub.Status
	return nil
}

// HasActiveSubscription reports whether the record exists with status active
func (s *Store) HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.subs[key{subscriberID, creatorID}] == subscription.StatusActive, nil
}
