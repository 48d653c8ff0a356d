package core

import (
	"testing"

	"procurecore/pkg/domain"
)

func TestStageOwnership(t *testing.T) {
	perms := NewPermissions()
	cases := []struct {
		kind  domain.StageKind
		owner domain.Role
	}{
		{domain.StageRFQ, domain.RoleProcurement},
		{domain.StageBid, domain.RoleProcurement},
		{domain.StageDelivery, domain.RoleSupply},
		{domain.StagePMTInspectionReport, domain.RoleSupply},
		{domain.StageORS, domain.RoleBudget},
		{domain.StageDV, domain.RoleAccounting},
		{domain.StageCheck, domain.RoleCashier},
		{domain.StageCheckAdvice, domain.RoleCashier},
	}
	for _, tc := range cases {
		owner, ok := perms.OwnerOf(tc.kind)
		if !ok || owner != tc.owner {
			t.Fatalf("owner of %s = %s, want %s", tc.kind, owner, tc.owner)
		}
		if !perms.CanMutate(tc.owner, tc.kind) {
			t.Fatalf("%s should mutate %s", tc.owner, tc.kind)
		}
	}
}

func TestNonOwnerCannotMutate(t *testing.T) {
	perms := NewPermissions()
	if perms.CanMutate(domain.RoleBudget, domain.StageCheck) {
		t.Fatalf("budget must not mutate check records")
	}
	if perms.CanMutate(domain.RoleCashier, domain.StageORS) {
		t.Fatalf("cashier must not mutate ors records")
	}
	if perms.CanMutate(domain.RoleSupply, domain.StageRFQ) {
		t.Fatalf("supply must not mutate rfq records")
	}
}

func TestAdminMutatesAndOverridesEverything(t *testing.T) {
	perms := NewPermissions()
	for kind := range stageOwners {
		if !perms.CanMutate(domain.RoleAdmin, kind) {
			t.Fatalf("admin should mutate %s", kind)
		}
	}
	if !perms.HasOverride(domain.RoleAdmin) {
		t.Fatalf("admin should carry the override capability")
	}
	for _, role := range []domain.Role{domain.RoleProcurement, domain.RoleSupply, domain.RoleBudget, domain.RoleAccounting, domain.RoleCashier} {
		if perms.HasOverride(role) {
			t.Fatalf("%s must not carry the override capability", role)
		}
	}
}

func TestTransitionPermissionFollowsTargetStage(t *testing.T) {
	perms := NewPermissions()
	if !perms.CanTransition(domain.RoleBudget, domain.StateORS) {
		t.Fatalf("budget should drive cases into ors")
	}
	if perms.CanTransition(domain.RoleBudget, domain.StateCheck) {
		t.Fatalf("budget must not drive cases into check")
	}
	if !perms.CanTransition(domain.RoleProcurement, domain.StatePosting) {
		t.Fatalf("procurement should post opportunities")
	}
	if !perms.CanTransition(domain.RoleProcurement, domain.StateClosed) {
		t.Fatalf("procurement should close cases")
	}
	if perms.CanTransition(domain.RoleSupply, domain.StateClosed) {
		t.Fatalf("supply must not close cases")
	}
}
