package objectgate

import (
	"context"
	"log/slog"
)

// AccessRequest asks whether UserID may use Permission on Object.
// An empty UserID is an anonymous caller.
type AccessRequest struct {
	UserID     string
	Object     ObjectRef
	Permission Permission
}

// AccessEngine decides access by combining the public-read shortcut, the
// owner bypass and first-match evaluation of the policy's group rules
type AccessEngine struct {
	policies *PolicyStore
	groups   *GroupResolver
	metrics  *Metrics
	logger   *slog.Logger
}

// NewAccessEngine creates an access engine
func NewAccessEngine(policies *PolicyStore, groups *GroupResolver, metrics *Metrics, logger *slog.Logger) *AccessEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessEngine{
		policies: policies,
		groups:   groups,
		metrics:  metrics,
		logger:   logger,
	}
}

// CanAccess loads the policy of req.Object and evaluates it
func (e *AccessEngine) CanAccess(ctx context.Context, req AccessRequest) (bool, error) {
	policy, err := e.policies.GetPolicy(ctx, req.Object)
	if err != nil {
		return false, err
	}
	return e.Evaluate(ctx, policy, req.UserID, req.Permission)
}

// Evaluate decides access against an already loaded policy. A nil policy
// denies everything. The only error is an unresolvable group type.
func (e *AccessEngine) Evaluate(ctx context.Context, policy *ObjectACLPolicy, userID string, requested Permission) (bool, error) {
	allowed, err := e.evaluate(ctx, policy, userID, requested)
	if err != nil {
		return false, err
	}
	e.metrics.observeDecision(requested, allowed)
	return allowed, nil
}

func (e *AccessEngine) evaluate(ctx context.Context, policy *ObjectACLPolicy, userID string, requested Permission) (bool, error) {
	if policy == nil || !requested.IsValid() {
		return false, nil
	}

	if policy.Visibility == VisibilityPublic && requested == PermissionRead {
		return true, nil
	}

	if userID == "" {
		return false, nil
	}

	if userID == policy.Owner {
		return true, nil
	}

	for _, rule := range policy.ACLRules {
		checker, err := e.groups.Resolve(rule.Group)
		if err != nil {
			e.logger.Error("Cannot resolve acl rule group", "group", rule.Group.String(), "error", err)
			return false, err
		}
		if !rule.Permission.Satisfies(requested) {
			continue
		}
		if checker.HasMember(ctx, userID) {
			return true, nil
		}
	}

	return false, nil
}
