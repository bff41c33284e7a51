package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/ticketslave/ticketslave/internal/platform/db"
)

// Audit actions recorded for administrative changes.
const (
	AuditPermissionGranted = "rbac.permission.granted"
	AuditPermissionRevoked = "rbac.permission.revoked"
	AuditRolePermissionSet = "rbac.role.permissions_set"
	AuditPermissionCreated = "rbac.permission.created"
	AuditPermissionUpdated = "rbac.permission.updated"
	AuditPermissionDeleted = "rbac.permission.deleted"
	AuditRoleCreated       = "rbac.role.created"
	AuditRoleUpdated       = "rbac.role.updated"
	AuditRoleDeleted       = "rbac.role.deleted"
	AuditUserRoleAssigned  = "users.role.assigned"
	AuditUserStatusChanged = "users.status.changed"
	AuditUserUpdated       = "users.updated"
	AuditUserDeleted       = "users.deleted"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db db.Querier
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{db: q}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

func (log AuditLog) validate() error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// ActorID returns the user id of the principal in ctx, or zero for system actions.
func ActorID(ctx context.Context) int64 {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return 0
}

// EntityID formats a numeric id for AuditLog.EntityID.
func EntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// MemoryAuditLog keeps entries in memory. Used by tests and fixtures.
type MemoryAuditLog struct {
	Entries []AuditLog
}

// Record appends the entry.
func (m *MemoryAuditLog) Record(_ context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	m.Entries = append(m.Entries, log)
	return nil
}

// Actions returns the recorded action names in order.
func (m *MemoryAuditLog) Actions() []string {
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Action)
	}
	return out
}
