package shared

// Cart, order and ticket permissions.
const (
	PermCartManageOwn   = "cart:manage:own"
	PermOrdersCreateOwn = "orders:create:own"
	PermOrdersReadOwn   = "orders:read:own"
	PermTicketsReadOwn  = "tickets:read:own"
	PermTicketsValidate = "tickets:validate"
)

// TicketScopes lists purchase and check-in permissions.
func TicketScopes() []string {
	return []string{
		PermCartManageOwn,
		PermOrdersCreateOwn,
		PermOrdersReadOwn,
		PermTicketsReadOwn,
		PermTicketsValidate,
	}
}

// AllScopes returns the full permission vocabulary in catalog order.
func AllScopes() []string {
	scopes := append([]string{}, CoreScopes()...)
	scopes = append(scopes, EventScopes()...)
	return append(scopes, TicketScopes()...)
}
