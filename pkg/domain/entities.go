// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by procurecore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCase identifies a procurement case record.
	EntityCase EntityType = "case"
	// EntityStageRecord identifies a stage record attached to a case.
	EntityStageRecord EntityType = "stage_record"
	// EntityAuditEntry identifies an append-only audit trail entry.
	EntityAuditEntry EntityType = "audit_entry"
	// EntityIdempotencyRecord identifies a consumed idempotency token.
	EntityIdempotencyRecord EntityType = "idempotency_record"
)

// Method enumerates the supported procurement modalities. Each method owns a
// fixed lifecycle graph; the method is set at case creation and never changes.
type Method string

// Canonical procurement methods.
const (
	// MethodSmallValueRFQ is small-value procurement through request for quotation.
	MethodSmallValueRFQ Method = "small_value_rfq"
	// MethodPublicBidding is competitive public bidding for goods and services.
	MethodPublicBidding Method = "public_bidding"
	// MethodInfrastructure is public bidding for infrastructure projects with
	// progress billing in place of delivery.
	MethodInfrastructure Method = "infrastructure"
)

// Methods lists every supported procurement method.
func Methods() []Method {
	return []Method{MethodSmallValueRFQ, MethodPublicBidding, MethodInfrastructure}
}

// Valid reports whether the method is one of the canonical values.
func (m Method) Valid() bool {
	switch m {
	case MethodSmallValueRFQ, MethodPublicBidding, MethodInfrastructure:
		return true
	}
	return false
}

// State represents one discrete position in a case's lifecycle.
type State string

// Canonical case lifecycle states across all procurement methods.
const (
	StateDraft                State = "draft"
	StatePosting              State = "posting"
	StateRFQIssued            State = "rfq_issued"
	StateQuotationCollection  State = "quotation_collection"
	StateAbstractOfQuotations State = "abstract_of_quotations"
	StateBidBulletin          State = "bid_bulletin"
	StatePreBidConference     State = "pre_bid_conference"
	StateBidSubmissionOpening State = "bid_submission_opening"
	StateTWGEvaluation        State = "twg_evaluation"
	StatePostQualification    State = "post_qualification"
	StateBACResolution        State = "bac_resolution"
	StateAwarded              State = "awarded"
	StatePOApproved           State = "po_approved"
	StateContractSigned       State = "contract_signed"
	StateNTPIssued            State = "ntp_issued"
	StateProgressBilling      State = "progress_billing"
	StatePMTInspection        State = "pmt_inspection"
	StateDelivery             State = "delivery"
	StateInspection           State = "inspection"
	StateAcceptance           State = "acceptance"
	StateORS                  State = "ors"
	StateDV                   State = "dv"
	StateCheck                State = "check"
	StateClosed               State = "closed"
)

// StageKind identifies the durable record family created when a case reaches a
// given lifecycle stage.
type StageKind string

// Canonical stage record kinds. Collection kinds hold multiple records per
// case; all other kinds are singleton-per-case with create-or-replace
// semantics.
const (
	StageRFQ                  StageKind = "rfq"
	StageQuotation            StageKind = "quotation"
	StageAbstractOfQuotations StageKind = "abstract_of_quotations"
	StageBACResolution        StageKind = "bac_resolution"
	StageAward                StageKind = "award"
	StagePurchaseOrder        StageKind = "purchase_order"
	StageContract             StageKind = "contract"
	StageNoticeToProceed      StageKind = "notice_to_proceed"
	StageBidBulletin          StageKind = "bid_bulletin"
	StagePreBidConference     StageKind = "pre_bid_conference"
	StageBid                  StageKind = "bid"
	StageTWGEvaluation        StageKind = "twg_evaluation"
	StagePostQualification    StageKind = "post_qualification"
	StageProgressBilling      StageKind = "progress_billing"
	StagePMTInspectionReport  StageKind = "pmt_inspection_report"
	StageDelivery             StageKind = "delivery"
	StageInspectionReport     StageKind = "inspection_report"
	StageAcceptance           StageKind = "acceptance"
	StageORS                  StageKind = "ors"
	StageDV                   StageKind = "dv"
	StageCheck                StageKind = "check"
	StageCheckAdvice          StageKind = "check_advice"
)

// IsCollection reports whether the kind accumulates multiple records per case.
func (k StageKind) IsCollection() bool {
	switch k {
	case StageQuotation, StageBid, StageDelivery, StageBidBulletin:
		return true
	}
	return false
}

// Role enumerates the organizational modules that act on a case, plus the
// administrative role that carries override capability.
type Role string

// Canonical actor roles.
const (
	RoleProcurement Role = "procurement"
	RoleSupply      Role = "supply"
	RoleBudget      Role = "budget"
	RoleAccounting  Role = "accounting"
	RoleCashier     Role = "cashier"
	RoleAdmin       Role = "admin"
)

// Valid reports whether the role is one of the canonical values.
func (r Role) Valid() bool {
	switch r {
	case RoleProcurement, RoleSupply, RoleBudget, RoleAccounting, RoleCashier, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller identity resolved by the external authorization
// collaborator. The engine trusts the resolved role.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// InspectionStatus enumerates inspection report outcomes consumed by the
// acceptance prerequisite.
type InspectionStatus string

// Canonical inspection outcomes.
const (
	InspectionPassed InspectionStatus = "PASSED"
	InspectionFailed InspectionStatus = "FAILED"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Case is the aggregate procurement record whose lifecycle the engine governs.
// State is only ever advanced by the transition executor or rolled back by the
// mutation guard; cases are never hard-deleted.
type Case struct {
	Base
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Office          string  `json:"office"`
	EstimatedBudget float64 `json:"estimated_budget"`
	Method          Method  `json:"method"`
	State           State   `json:"state"`
}

// StageRecord is the durable witness that its case has reached (or passed) the
// corresponding lifecycle stage. Records are owned by their case.
type StageRecord struct {
	Base
	CaseID    string         `json:"case_id"`
	Kind      StageKind      `json:"kind"`
	Fields    map[string]any `json:"fields"`
	CreatedBy string         `json:"created_by"`
}

// Field returns a named payload field, or nil when absent.
func (r StageRecord) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// BoolField reads a boolean payload field, defaulting to false.
func (r StageRecord) BoolField(name string) bool {
	v, _ := r.Field(name).(bool)
	return v
}

// StringField reads a string payload field, defaulting to empty.
func (r StageRecord) StringField(name string) string {
	v, _ := r.Field(name).(string)
	return v
}

// AuditAction labels the kind of accepted mutation an audit entry records.
type AuditAction string

// Audit entry actions. Entries are written only on genuinely accepted
// mutations, never on rejected attempts.
const (
	// AuditTransition records an accepted forward state transition.
	AuditTransition AuditAction = "transition"
	// AuditAppend records a member added to a collection stage.
	AuditAppend AuditAction = "append"
	// AuditEdit records an authorized stage record edit. State is unchanged.
	AuditEdit AuditAction = "edit"
	// AuditDelete records an authorized stage record delete, including any
	// state rollback it caused.
	AuditDelete AuditAction = "delete"
)

// AuditEntry is an immutable lifecycle history record. Entries for a case are
// totally ordered by (CreatedAt, Seq) and reconstruct the case history when
// read in that order.
type AuditEntry struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	CaseID    string         `json:"case_id"`
	Action    AuditAction    `json:"action"`
	FromState State          `json:"from_state"`
	ToState   State          `json:"to_state,omitempty"`
	Actor     string         `json:"actor"`
	ActorRole Role           `json:"actor_role"`
	Entity    EntityType     `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Kind      StageKind      `json:"kind,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IdempotencyRecord marks a caller-supplied token as consumed. A token is
// spent exactly once within its validity window regardless of whether the
// guarded transaction ultimately succeeded.
type IdempotencyRecord struct {
	Token      string    `json:"token"`
	CaseID     string    `json:"case_id"`
	Operation  string    `json:"operation"`
	Actor      string    `json:"actor"`
	ConsumedAt time.Time `json:"consumed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Action labels a CRUD operation captured in a Change record.
type Action string

// Change actions enumerate supported operations captured during transactions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change captures a single entity mutation observed within a transaction.
// Before/After carry JSON snapshots for rule evaluation and audit payloads.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
