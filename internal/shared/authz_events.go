package shared

// Event management permissions. The :own scope limits the grant to events
// created by the caller.
const (
	PermEventsCreate     = "events:create"
	PermEventsReadOwn    = "events:read:own"
	PermEventsUpdateOwn  = "events:update:own"
	PermEventsDeleteOwn  = "events:delete:own"
	PermEventsPublishOwn = "events:publish:own"
)

// EventScopes lists event permissions.
func EventScopes() []string {
	return []string{
		PermEventsCreate,
		PermEventsReadOwn,
		PermEventsUpdateOwn,
		PermEventsDeleteOwn,
		PermEventsPublishOwn,
	}
}
