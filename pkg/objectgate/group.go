package objectgate

import (
	"context"
	"fmt"
	"log/slog"
)

// IsKnown reports whether a resolver exists for the group type
func (t GroupType) IsKnown() bool {
	switch t {
	case GroupTypeSubscriber:
		return true
	default:
		return false
	}
}

// MembershipChecker answers whether a user belongs to one resolved group.
// Lookup failures are reported as non-membership.
type MembershipChecker interface {
	HasMember(ctx context.Context, userID string) bool
}

// GroupResolver turns AccessGroup descriptors into membership checkers.
// New group types are added as a case in Resolve and a checker type.
type GroupResolver struct {
	subscriptions SubscriptionStore
	logger        *slog.Logger
	metrics       *Metrics
}

// NewGroupResolver creates a resolver backed by the given subscription store
func NewGroupResolver(subscriptions SubscriptionStore, logger *slog.Logger, metrics *Metrics) *GroupResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupResolver{
		subscriptions: subscriptions,
		logger:        logger,
		metrics:       metrics,
	}
}

// Resolve returns the membership checker for group. An unknown group type is
// a configuration error and is returned as ErrUnknownGroupType.
func (r *GroupResolver) Resolve(group AccessGroup) (MembershipChecker, error) {
	switch group.Type {
	case GroupTypeSubscriber:
		if r.subscriptions == nil {
			return nil, &ConfigError{Setting: "subscription store", Hint: "required for subscriber groups"}
		}
		return &subscriberGroup{
			creatorID: group.ID,
			store:     r.subscriptions,
			logger:    r.logger,
			metrics:   r.metrics,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroupType, group.Type)
	}
}

// subscriberGroup contains every user with an active subscription to creatorID
type subscriberGroup struct {
	creatorID string
	store     SubscriptionStore
	logger    *slog.Logger
	metrics   *Metrics
}

func (g *subscriberGroup) HasMember(ctx context.Context, userID string) bool {
	if userID == "" || g.creatorID == "" {
		return false
	}

	ok, err := g.store.HasActiveSubscription(ctx, userID, g.creatorID)
	if err != nil {
		// fail closed
		g.logger.Warn("Subscription lookup failed, treating as non-member",
			"subscriber_id", userID, "creator_id", g.creatorID, "error", err)
		g.metrics.observeMembershipFailure()
		return false
	}
	return ok
}
