package gatekeeper

// RoleTier is the ordered privilege level of an identity. Higher tiers are
// supersets of lower tiers except where the capability override table says
// otherwise.
type RoleTier int

const (
	TierUser RoleTier = iota
	TierAdmin
	TierSuperAdmin
	TierMindAdmin
)

// String returns the persisted name of the tier.
func (t RoleTier) String() string {
	switch t {
	case TierUser:
		return "user"
	case TierAdmin:
		return "admin"
	case TierSuperAdmin:
		return "superAdmin"
	case TierMindAdmin:
		return "mindAdmin"
	default:
		return "unknown"
	}
}

// ParseRoleTier maps a persisted tier name back to its RoleTier.
func ParseRoleTier(s string) (RoleTier, bool) {
	switch s {
	case "user":
		return TierUser, true
	case "admin":
		return TierAdmin, true
	case "superAdmin":
		return TierSuperAdmin, true
	case "mindAdmin":
		return TierMindAdmin, true
	default:
		return TierUser, false
	}
}

// Elevated reports whether the tier is subject to the single-active-session
// exclusivity rule.
func (t RoleTier) Elevated() bool {
	return t == TierSuperAdmin || t == TierMindAdmin
}

// Capability names an administrative action a collaborator may ask about.
type Capability string

const (
	// CapViewDashboard covers the read-only admin landing view.
	CapViewDashboard Capability = "view_dashboard"
	// CapEditContent covers the content editor surfaces.
	CapEditContent Capability = "edit_content"
	// CapManageIdentities covers registering and deactivating identities.
	CapManageIdentities Capability = "manage_identities"
	// CapViewSecurityLog covers reading the persisted security log.
	CapViewSecurityLog Capability = "view_security_log"
	// CapBrandStudio covers the brand/logo tooling. Granted to Admin and
	// MindAdmin but intentionally withheld from SuperAdmin; see overrides.
	CapBrandStudio Capability = "brand_studio"
	// CapMindConsole covers the MindAdmin-only console.
	CapMindConsole Capability = "mind_console"
)

// minimumTier maps hierarchical capabilities to the lowest tier that holds
// them. Capabilities absent here must appear in capabilityOverrides.
var minimumTier = map[Capability]RoleTier{
	CapViewDashboard:    TierAdmin,
	CapEditContent:      TierAdmin,
	CapManageIdentities: TierSuperAdmin,
	CapViewSecurityLog:  TierSuperAdmin,
	CapMindConsole:      TierMindAdmin,
}

// capabilityOverrides holds the grants that do not follow the tier ordering.
// An entry lists exactly the tiers that hold the capability.
var capabilityOverrides = map[Capability]map[RoleTier]bool{
	CapBrandStudio: {
		TierAdmin:     true,
		TierMindAdmin: true,
	},
}

// RoleResolver answers capability queries. It is pure and safe for
// concurrent use.
type RoleResolver struct{}

// NewRoleResolver returns a RoleResolver.
func NewRoleResolver() *RoleResolver { return &RoleResolver{} }

// TierOf returns the role tier of a verified identity.
func (r *RoleResolver) TierOf(identity *Identity) RoleTier {
	if identity == nil {
		return TierUser
	}
	return identity.RoleTier
}

// HasCapability reports whether the tier holds the capability. Overrides are
// consulted first; everything else follows the total order.
func (r *RoleResolver) HasCapability(tier RoleTier, cap Capability) bool {
	if grants, ok := capabilityOverrides[cap]; ok {
		return grants[tier]
	}
	min, ok := minimumTier[cap]
	if !ok {
		return false
	}
	return tier >= min
}
