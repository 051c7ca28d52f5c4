// Package subscription holds the status values shared by the subscription
// store implementations in its subpackages.
package subscription

import "context"

// Status of a subscription record. Only StatusActive grants membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusPastDue   Status = "past_due"
)

// Subscription is one subscriber/creator record
type Subscription struct {
	SubscriberID string
	CreatorID    string
	Status       Status
}

// Writer is implemented by stores that accept subscription records
type Writer interface {
	Put(ctx context.Context, sub Subscription) error
}
