package gatekeeper

import "testing"

func TestRoleTierOrdering(t *testing.T) {
	if !(TierUser < TierAdmin && TierAdmin < TierSuperAdmin && TierSuperAdmin < TierMindAdmin) {
		t.Fatal("tier ordering broken")
	}
}

func TestRoleTierStrings(t *testing.T) {
	cases := []struct {
		tier RoleTier
		want string
	}{
		{TierUser, "user"},
		{TierAdmin, "admin"},
		{TierSuperAdmin, "superAdmin"},
		{TierMindAdmin, "mindAdmin"},
	}
	for _, tc := range cases {
		if got := tc.tier.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", tc.tier, got, tc.want)
		}
		parsed, ok := ParseRoleTier(tc.want)
		if !ok || parsed != tc.tier {
			t.Errorf("ParseRoleTier(%q) = %v, %v", tc.want, parsed, ok)
		}
	}
	if _, ok := ParseRoleTier("root"); ok {
		t.Error("unknown tier names must not parse")
	}
}

func TestElevated(t *testing.T) {
	if TierUser.Elevated() || TierAdmin.Elevated() {
		t.Error("user and admin are not elevated")
	}
	if !TierSuperAdmin.Elevated() || !TierMindAdmin.Elevated() {
		t.Error("superAdmin and mindAdmin are elevated")
	}
}

func TestHasCapability(t *testing.T) {
	resolver := NewRoleResolver()

	cases := []struct {
		tier RoleTier
		cap  Capability
		want bool
	}{
		{TierUser, CapViewDashboard, false},
		{TierAdmin, CapViewDashboard, true},
		{TierSuperAdmin, CapViewDashboard, true},
		{TierMindAdmin, CapViewDashboard, true},

		{TierAdmin, CapEditContent, true},
		{TierAdmin, CapManageIdentities, false},
		{TierSuperAdmin, CapManageIdentities, true},
		{TierSuperAdmin, CapViewSecurityLog, true},
		{TierAdmin, CapViewSecurityLog, false},

		{TierSuperAdmin, CapMindConsole, false},
		{TierMindAdmin, CapMindConsole, true},

		// Brand studio does not follow the tier ordering: admin and
		// mindAdmin hold it, superAdmin does not.
		{TierAdmin, CapBrandStudio, true},
		{TierSuperAdmin, CapBrandStudio, false},
		{TierMindAdmin, CapBrandStudio, true},
		{TierUser, CapBrandStudio, false},
	}

	for _, tc := range cases {
		if got := resolver.HasCapability(tc.tier, tc.cap); got != tc.want {
			t.Errorf("HasCapability(%v, %s) = %v, want %v", tc.tier, tc.cap, got, tc.want)
		}
	}

	if resolver.HasCapability(TierMindAdmin, Capability("unknown")) {
		t.Error("unknown capabilities are never granted")
	}
}

func TestTierOf(t *testing.T) {
	resolver := NewRoleResolver()
	if got := resolver.TierOf(nil); got != TierUser {
		t.Errorf("TierOf(nil) = %v, want user", got)
	}
	if got := resolver.TierOf(&Identity{RoleTier: TierMindAdmin}); got != TierMindAdmin {
		t.Errorf("TierOf = %v, want mindAdmin", got)
	}
}
