package rbac

import (
	"context"
	"errors"
	"log/slog"
)

// GrantReader is the read side of the matrix store.
type GrantReader interface {
	GetGrant(ctx context.Context, role Role, resource Resource, action Action) (bool, error)
}

// DecisionObserver records authorization outcomes, typically as metrics.
type DecisionObserver interface {
	ObserveDecision(resource, action string, allowed bool)
}

// Evaluator answers whether a role may perform an action on a resource.
// It is fail-closed: unknown roles, invalid input, storage errors and panics
// in the backend all resolve to deny and are never returned to the caller.
type Evaluator struct {
	grants   GrantReader
	observer DecisionObserver
	logger   *slog.Logger
}

// NewEvaluator builds an Evaluator. observer and logger may be nil.
func NewEvaluator(grants GrantReader, observer DecisionObserver, logger *slog.Logger) *Evaluator {
	return &Evaluator{grants: grants, observer: observer, logger: logger}
}

// Can reports whether role holds the grant for action on resource.
func (e *Evaluator) Can(ctx context.Context, role Role, resource Resource, action Action) (allowed bool) {
	if e == nil || e.grants == nil || role == "" {
		return false
	}
	label := string(resource)
	defer func() {
		if rec := recover(); rec != nil {
			e.log().Error("rbac evaluator panic", slog.Any("panic", rec), slog.String("role", string(role)))
			allowed = false
		}
		if e.observer != nil {
			e.observer.ObserveDecision(label, string(action), allowed)
		}
	}()

	ok, err := e.grants.GetGrant(ctx, role, resource, action)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownResource), errors.Is(err, ErrUnknownAction):
			label = "invalid"
			e.log().Debug("rbac deny invalid request", slog.String("resource", string(resource)), slog.String("action", string(action)))
		case errors.Is(err, ErrUnknownRole):
			e.log().Debug("rbac deny unknown role", slog.String("role", string(role)))
		default:
			e.log().Warn("rbac deny on lookup failure", slog.String("role", string(role)), slog.Any("error", err))
		}
		return false
	}
	return ok
}

// CanAny reports whether at least one of actions is granted. An empty set is
// never granted.
func (e *Evaluator) CanAny(ctx context.Context, role Role, resource Resource, actions ...Action) bool {
	for _, act := range actions {
		if e.Can(ctx, role, resource, act) {
			return true
		}
	}
	return false
}

func (e *Evaluator) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}
