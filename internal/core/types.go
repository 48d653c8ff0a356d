package core

import "procurecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Method             = domain.Method
	State              = domain.State
	StageKind          = domain.StageKind
	Role               = domain.Role
	Actor              = domain.Actor
	Severity           = domain.Severity
	Base               = domain.Base
	Case               = domain.Case
	StageRecord        = domain.StageRecord
	AuditEntry         = domain.AuditEntry
	AuditAction        = domain.AuditAction
	IdempotencyRecord  = domain.IdempotencyRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RulesEngine        = domain.RulesEngine
)

const (
	EntityCase              = domain.EntityCase
	EntityStageRecord       = domain.EntityStageRecord
	EntityAuditEntry        = domain.EntityAuditEntry
	EntityIdempotencyRecord = domain.EntityIdempotencyRecord
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	AuditTransition = domain.AuditTransition
	AuditAppend     = domain.AuditAppend
	AuditEdit       = domain.AuditEdit
	AuditDelete     = domain.AuditDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set
// evaluated at every transaction commit.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(StateTransitionRule(NewTransitionPolicy(), NewRollbackResolver()))
	engine.Register(StageOwnershipRule())
	engine.Register(AuditImmutabilityRule())
	return engine
}
