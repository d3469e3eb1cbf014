package rbac

import (
	"context"
	"log/slog"

	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RecordChanges writes every change read from changes until the channel is
// closed or ctx is done. Changes relayed from other processes are skipped
// since their origin records them. Failed writes are logged and skipped.
func RecordChanges(ctx context.Context, changes <-chan Change, recorder AuditRecorder, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Origin != "" {
				continue
			}
			if err := recorder.Record(ctx, auditEntry(c)); err != nil && logger != nil {
				logger.Warn("rbac audit record", slog.String("kind", string(c.Kind)), slog.Any("error", err))
			}
		}
	}
}

func auditEntry(c Change) shared.AuditLog {
	entry := shared.AuditLog{
		Actor:    c.Actor,
		Action:   string(c.Kind),
		Entity:   "rbac_role",
		EntityID: string(c.Role),
		Meta:     map[string]any{},
		At:       c.At,
	}
	if c.Grant != nil {
		entry.Entity = "rbac_grant"
		entry.EntityID = c.Grant.Key().String()
		entry.Meta["resource"] = string(c.Grant.Resource)
		entry.Meta["action"] = string(c.Grant.Action)
		entry.Meta["allowed"] = c.Grant.Allowed
	}
	return entry
}
