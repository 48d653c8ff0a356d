package core

import "procurecore/pkg/domain"

// stageOwners fixes which organizational module holds baseline edit, delete,
// and transition permission for each stage kind. Admin may perform any action
// and is the only role carrying the admin_override capability.
var stageOwners = map[StageKind]Role{
	domain.StageRFQ:                  domain.RoleProcurement,
	domain.StageQuotation:            domain.RoleProcurement,
	domain.StageAbstractOfQuotations: domain.RoleProcurement,
	domain.StageBACResolution:        domain.RoleProcurement,
	domain.StageAward:                domain.RoleProcurement,
	domain.StagePurchaseOrder:        domain.RoleProcurement,
	domain.StageContract:             domain.RoleProcurement,
	domain.StageNoticeToProceed:      domain.RoleProcurement,
	domain.StageBidBulletin:          domain.RoleProcurement,
	domain.StagePreBidConference:     domain.RoleProcurement,
	domain.StageBid:                  domain.RoleProcurement,
	domain.StageTWGEvaluation:        domain.RoleProcurement,
	domain.StagePostQualification:    domain.RoleProcurement,
	domain.StageProgressBilling:      domain.RoleSupply,
	domain.StagePMTInspectionReport:  domain.RoleSupply,
	domain.StageDelivery:             domain.RoleSupply,
	domain.StageInspectionReport:     domain.RoleSupply,
	domain.StageAcceptance:           domain.RoleSupply,
	domain.StageORS:                  domain.RoleBudget,
	domain.StageDV:                   domain.RoleAccounting,
	domain.StageCheck:                domain.RoleCashier,
	domain.StageCheckAdvice:          domain.RoleCashier,
}

// recordlessStateOwners covers transitions that create no stage record.
var recordlessStateOwners = map[State]Role{
	domain.StatePosting: domain.RoleProcurement,
	domain.StateClosed:  domain.RoleProcurement,
}

// Permissions answers role capability questions for the engine. The matrix is
// fixed; role resolution itself is an external collaborator's concern.
type Permissions struct{}

// NewPermissions constructs the fixed permission matrix.
func NewPermissions() Permissions {
	return Permissions{}
}

// OwnerOf returns the module that owns a stage kind.
func (Permissions) OwnerOf(kind StageKind) (Role, bool) {
	owner, ok := stageOwners[kind]
	return owner, ok
}

// CanMutate reports whether role holds baseline edit/delete permission on the
// stage kind.
func (Permissions) CanMutate(role Role, kind StageKind) bool {
	if role == domain.RoleAdmin {
		return true
	}
	return stageOwners[kind] == role
}

// CanTransition reports whether role may drive a case into target.
func (Permissions) CanTransition(role Role, target State) bool {
	if role == domain.RoleAdmin {
		return true
	}
	if kind, ok := kindByState[target]; ok {
		return stageOwners[kind] == role
	}
	return recordlessStateOwners[target] == role
}

// HasOverride reports whether role carries the admin_override capability that
// permits mutation despite existing downstream data.
func (Permissions) HasOverride(role Role) bool {
	return role == domain.RoleAdmin
}
