package services

import (
	"maps"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// AdminCeiling is large enough that admins never hit it in practice while
// still going through the same quota path as everyone else.
const AdminCeiling = 999999

// PermissionTable is the static role → capability and role → daily ceiling
// mapping. It is immutable after construction.
type PermissionTable struct {
	capabilities map[models.Role]models.PermissionSet
	ceilings     map[models.Role]map[models.Action]int
}

func grant(caps ...models.Capability) models.PermissionSet {
	set := make(models.PermissionSet, len(models.Capabilities))
	for _, c := range models.Capabilities {
		set[c] = false
	}
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// DefaultPermissionTable returns the production tables.
func DefaultPermissionTable() *PermissionTable {
	return &PermissionTable{
		capabilities: map[models.Role]models.PermissionSet{
			models.RoleAdmin:      grant(models.Capabilities...),
			models.RoleRegistered: grant(models.Capabilities...),
			models.RoleTrial: grant(
				models.CapUseBot, models.CapSearch, models.CapViewListings, models.CapCreateListing,
				models.CapContactSeller, models.CapMakePayment, models.CapAdminChat,
				models.CapAccessCommunity, models.CapAccessSettings,
			),
			models.RolePending: grant(
				models.CapUseBot, models.CapSearch, models.CapViewListings,
				models.CapMakePayment, models.CapAdminChat, models.CapAccessSettings,
			),
			models.RoleExpired: grant(
				models.CapUseBot, models.CapSearch, models.CapViewListings,
				models.CapMakePayment, models.CapAdminChat, models.CapAccessSettings,
			),
			models.RoleNew: grant(
				models.CapUseBot, models.CapSearch, models.CapViewListings, models.CapAdminChat,
			),
		},
		ceilings: map[models.Role]map[models.Action]int{
			models.RoleAdmin: {
				models.ActionListing: AdminCeiling, models.ActionSearch: AdminCeiling,
				models.ActionMessage: AdminCeiling, models.ActionAdminChat: AdminCeiling,
			},
			models.RoleRegistered: {models.ActionListing: 10, models.ActionSearch: 50, models.ActionMessage: 200, models.ActionAdminChat: 10},
			models.RoleTrial:      {models.ActionListing: 3, models.ActionSearch: 20, models.ActionMessage: 100, models.ActionAdminChat: 5},
			models.RolePending:    {models.ActionListing: 0, models.ActionSearch: 10, models.ActionMessage: 50, models.ActionAdminChat: 3},
			models.RoleExpired:    {models.ActionListing: 0, models.ActionSearch: 5, models.ActionMessage: 30, models.ActionAdminChat: 3},
			models.RoleNew:        {models.ActionListing: 0, models.ActionSearch: 5, models.ActionMessage: 20, models.ActionAdminChat: 2},
		},
	}
}

// CheckPermission is a pure table lookup. Unknown roles get nothing.
func (t *PermissionTable) CheckPermission(role models.Role, c models.Capability) bool {
	return t.capabilities[role].Has(c)
}

// Require returns a *PermissionError when role lacks c.
func (t *PermissionTable) Require(role models.Role, c models.Capability) error {
	if !t.CheckPermission(role, c) {
		return &PermissionError{Role: role, Capability: c}
	}
	return nil
}

// Permissions returns a copy of the role's capability set.
func (t *PermissionTable) Permissions(role models.Role) models.PermissionSet {
	if set, ok := t.capabilities[role]; ok {
		return maps.Clone(set)
	}
	return grant()
}

// Ceiling returns the daily ceiling for action. Unknown pairs get zero.
func (t *PermissionTable) Ceiling(role models.Role, action models.Action) int {
	return t.ceilings[role][action]
}
