package constant

// Context keys set by the auth middleware and read by handlers.
const (
	UserField = "user_id"
	RoleField = "role"
)

// Identity roles.
const (
	RoleRequester = "requester"
	RoleResponder = "responder"
	RoleAdmin     = "administrator"
)
