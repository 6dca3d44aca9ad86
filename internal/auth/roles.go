package auth

import "fmt"

// Role is an admin realm role.
type Role string

// Admin roles. Operators run the game catalogue and the vault, treasurers
// move bankroll funds, superadmins may also use the migration escape hatch.
const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleTreasurer  Role = "treasurer"
	RoleSuperAdmin Role = "superadmin"
)

// Capability is a class of admin routes.
type Capability string

const (
	CapRead     Capability = "read"     // audit, fees, suspensions, snapshots
	CapGames    Capability = "games"    // allowlist and token enablement
	CapVault    Capability = "vault"    // pools, rewards, schedule, performance fee
	CapTreasury Capability = "treasury" // bankroll withdrawals and fee sweeps
	CapExecute  Capability = "execute"  // raw calls from custody
)

var grants = map[Role]map[Capability]bool{
	RoleViewer:    {CapRead: true},
	RoleOperator:  {CapRead: true, CapGames: true, CapVault: true},
	RoleTreasurer: {CapRead: true, CapTreasury: true},
	RoleSuperAdmin: {
		CapRead: true, CapGames: true, CapVault: true, CapTreasury: true, CapExecute: true,
	},
}

// ParseRole validates an admin role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := grants[r]; !ok {
		return "", fmt.Errorf("unknown admin role: %q", s)
	}
	return r, nil
}

// Can reports whether r grants c.
func (r Role) Can(c Capability) bool {
	return grants[r][c]
}
