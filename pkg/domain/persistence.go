package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Audit entries are append-only by
// construction: no update or delete operation exists.
type Transaction interface {
	Snapshot() TransactionView
	CreateCase(Case) (Case, error)
	UpdateCase(id string, mutator func(*Case) error) (Case, error)
	FindCase(id string) (Case, bool)
	CreateStageRecord(StageRecord) (StageRecord, error)
	UpdateStageRecord(id string, mutator func(*StageRecord) error) (StageRecord, error)
	DeleteStageRecord(id string) error
	FindStageRecord(id string) (StageRecord, bool)
	StageRecordsOfKind(caseID string, kind StageKind) []StageRecord
	AppendAuditEntry(AuditEntry) (AuditEntry, error)
	ConsumeIdempotencyToken(IdempotencyRecord) error
	FindIdempotencyRecord(token string) (IdempotencyRecord, bool)
	PruneIdempotencyRecords() int
}

// TransactionView provides read-only access to snapshot data for rules and
// guard checks.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCase(id string) (Case, bool)
	ListCases() []Case
	ListStageRecords(caseID string) []StageRecord
	StageRecordsOfKind(caseID string, kind StageKind) []StageRecord
	ListAuditEntries(caseID string) []AuditEntry
}
