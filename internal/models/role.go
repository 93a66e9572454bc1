package models

// Role is the mutually exclusive classification of a user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleRegistered Role = "registered"
	RoleTrial      Role = "trial"
	RolePending    Role = "pending"
	RoleExpired    Role = "expired"
	RoleNew        Role = "new"
)

// Roles lists every role in descending privilege order.
var Roles = []Role{RoleAdmin, RoleRegistered, RoleTrial, RolePending, RoleExpired, RoleNew}

// Capability is a boolean permission flag.
type Capability string

const (
	CapUseBot          Capability = "use_bot"
	CapSearch          Capability = "search"
	CapViewListings    Capability = "view_listings"
	CapCreateListing   Capability = "create_listing"
	CapContactSeller   Capability = "contact_seller"
	CapMakePayment     Capability = "make_payment"
	CapAdminChat       Capability = "admin_chat"
	CapAccessCommunity Capability = "access_community"
	CapUsePoints       Capability = "use_points"
	CapAccessSettings  Capability = "access_settings"
)

// Capabilities lists every capability.
var Capabilities = []Capability{
	CapUseBot, CapSearch, CapViewListings, CapCreateListing, CapContactSeller,
	CapMakePayment, CapAdminChat, CapAccessCommunity, CapUsePoints, CapAccessSettings,
}

// PermissionSet is the resolved capability table for one role.
type PermissionSet map[Capability]bool

// Has reports whether c is granted.
func (p PermissionSet) Has(c Capability) bool { return p[c] }

// Action is a countable, quota-limited activity.
type Action string

const (
	ActionListing   Action = "listings"
	ActionSearch    Action = "searches"
	ActionMessage   Action = "messages"
	ActionAdminChat Action = "admin_chats"
)

// Actions lists every countable action.
var Actions = []Action{ActionListing, ActionSearch, ActionMessage, ActionAdminChat}

// ActivityState is whether a user is idle or in the middle of a flow.
type ActivityState string

const (
	StateIdle   ActivityState = "idle"
	StateInFlow ActivityState = "in_flow"
)

// UserContext is derived on every inbound event and never persisted.
type UserContext struct {
	UserID      string
	Role        Role
	State       ActivityState
	Flow        FlowName
	Permissions PermissionSet
	Profile     *UserProfile
	// Degraded is set when classification fell back to the low-privilege
	// default because the store could not be read.
	Degraded bool
}

// InFlow reports whether the user has an active flow.
func (c *UserContext) InFlow() bool { return c.State == StateInFlow }
