// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. Durable backends embed it
// and snapshot its state after every committed transaction.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"procurecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Case aliases domain.Case for in-memory persistence operations.
	Case = domain.Case
	// StageRecord aliases domain.StageRecord.
	StageRecord = domain.StageRecord
	// AuditEntry aliases domain.AuditEntry.
	AuditEntry = domain.AuditEntry
	// IdempotencyRecord aliases domain.IdempotencyRecord.
	IdempotencyRecord = domain.IdempotencyRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

type memoryState struct {
	cases        map[string]Case
	stageRecords map[string]StageRecord
	auditEntries map[string]AuditEntry
	idempotency  map[string]IdempotencyRecord
	auditSeq     uint64
}

// Snapshot captures a point-in-time clone of the store state keyed by
// persistence bucket.
type Snapshot struct {
	Cases        map[string]Case              `json:"cases"`
	StageRecords map[string]StageRecord       `json:"stage_records"`
	AuditEntries map[string]AuditEntry        `json:"audit_entries"`
	Idempotency  map[string]IdempotencyRecord `json:"idempotency"`
	AuditSeq     uint64                       `json:"audit_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		cases:        make(map[string]Case),
		stageRecords: make(map[string]StageRecord),
		auditEntries: make(map[string]AuditEntry),
		idempotency:  make(map[string]IdempotencyRecord),
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func cloneCase(c Case) Case { return c }

func cloneStageRecord(r StageRecord) StageRecord {
	cp := r
	cp.Fields = cloneFields(r.Fields)
	return cp
}

func cloneAuditEntry(e AuditEntry) AuditEntry {
	cp := e
	cp.Payload = cloneFields(e.Payload)
	return cp
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cases {
		cloned.cases[k] = cloneCase(v)
	}
	for k, v := range s.stageRecords {
		cloned.stageRecords[k] = cloneStageRecord(v)
	}
	for k, v := range s.auditEntries {
		cloned.auditEntries[k] = cloneAuditEntry(v)
	}
	for k, v := range s.idempotency {
		cloned.idempotency[k] = v
	}
	cloned.auditSeq = s.auditSeq
	return cloned
}

// Store provides an in-memory transactional store for the procurement domain.
// A single mutex serializes transactions, so no two transactions writing the
// same case's state can commit concurrently with inconsistent outcomes.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// view exposes a read-only snapshot of the transactional state to rules and
// guard checks.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

// ListCases returns all cases within the snapshot.
func (v view) ListCases() []Case {
	out := make([]Case, 0, len(v.state.cases))
	for _, c := range v.state.cases {
		out = append(out, cloneCase(c))
	}
	return out
}

// FindCase retrieves a case by ID from the snapshot.
func (v view) FindCase(id string) (Case, bool) {
	c, ok := v.state.cases[id]
	if !ok {
		return Case{}, false
	}
	return cloneCase(c), true
}

// ListStageRecords returns every stage record of the case in creation order.
func (v view) ListStageRecords(caseID string) []StageRecord {
	var out []StageRecord
	for _, r := range v.state.stageRecords {
		if r.CaseID == caseID {
			out = append(out, cloneStageRecord(r))
		}
	}
	sortStageRecords(out)
	return out
}

// StageRecordsOfKind returns the case's records of one kind in creation order.
func (v view) StageRecordsOfKind(caseID string, kind domain.StageKind) []StageRecord {
	var out []StageRecord
	for _, r := range v.state.stageRecords {
		if r.CaseID == caseID && r.Kind == kind {
			out = append(out, cloneStageRecord(r))
		}
	}
	sortStageRecords(out)
	return out
}

// FindStageRecord retrieves a stage record by ID from the snapshot.
func (v view) FindStageRecord(id string) (StageRecord, bool) {
	r, ok := v.state.stageRecords[id]
	if !ok {
		return StageRecord{}, false
	}
	return cloneStageRecord(r), true
}

// ListAuditEntries returns the case's audit trail ordered by creation time
// ascending.
func (v view) ListAuditEntries(caseID string) []AuditEntry {
	var out []AuditEntry
	for _, e := range v.state.auditEntries {
		if e.CaseID == caseID {
			out = append(out, cloneAuditEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindIdempotencyRecord retrieves a consumed token from the snapshot.
func (v view) FindIdempotencyRecord(token string) (IdempotencyRecord, bool) {
	rec, ok := v.state.idempotency[token]
	return rec, ok
}

func sortStageRecords(records []StageRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the mutated snapshot before commit;
// blocking violations abort the transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

// GetCase fetches one case from committed state.
func (s *Store) GetCase(id string) (Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cases[id]
	if !ok {
		return Case{}, false
	}
	return cloneCase(c), true
}

// ListCases returns all committed cases.
func (s *Store) ListCases() []Case {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListCases()
}

// ListStageRecords returns a case's committed stage records.
func (s *Store) ListStageRecords(caseID string) []StageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListStageRecords(caseID)
}

// StageRecordsOfKind returns a case's committed records of one kind.
func (s *Store) StageRecordsOfKind(caseID string, kind domain.StageKind) []StageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.StageRecordsOfKind(caseID, kind)
}

// ListAuditEntries returns a case's committed audit trail in creation order.
func (s *Store) ListAuditEntries(caseID string) []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListAuditEntries(caseID)
}

// ExportState returns a deep copy of committed state for snapshot
// persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Cases:        make(map[string]Case, len(s.state.cases)),
		StageRecords: make(map[string]StageRecord, len(s.state.stageRecords)),
		AuditEntries: make(map[string]AuditEntry, len(s.state.auditEntries)),
		Idempotency:  make(map[string]IdempotencyRecord, len(s.state.idempotency)),
		AuditSeq:     s.state.auditSeq,
	}
	for k, v := range s.state.cases {
		snap.Cases[k] = cloneCase(v)
	}
	for k, v := range s.state.stageRecords {
		snap.StageRecords[k] = cloneStageRecord(v)
	}
	for k, v := range s.state.auditEntries {
		snap.AuditEntries[k] = cloneAuditEntry(v)
	}
	for k, v := range s.state.idempotency {
		snap.Idempotency[k] = v
	}
	return snap
}

// ImportState replaces committed state from a persisted snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := newMemoryState()
	for k, v := range snap.Cases {
		state.cases[k] = cloneCase(v)
	}
	for k, v := range snap.StageRecords {
		state.stageRecords[k] = cloneStageRecord(v)
	}
	for k, v := range snap.AuditEntries {
		state.auditEntries[k] = cloneAuditEntry(v)
	}
	for k, v := range snap.Idempotency {
		state.idempotency[k] = v
	}
	state.auditSeq = snap.AuditSeq
	s.state = state
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, before, after any) {
	change := Change{Entity: entity, Action: action}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		mustApply("encode change before", err)
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		mustApply("encode change after", err)
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state as a read-only view.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateCase stores a new case within the transaction.
func (tx *transaction) CreateCase(c Case) (Case, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cases[c.ID]; exists {
		return Case{}, fmt.Errorf("case %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cases[c.ID] = cloneCase(c)
	tx.recordChange(domain.EntityCase, domain.ActionCreate, nil, c)
	return cloneCase(c), nil
}

// UpdateCase mutates a case using the provided mutator function.
func (tx *transaction) UpdateCase(id string, mutator func(*Case) error) (Case, error) {
	current, ok := tx.state.cases[id]
	if !ok {
		return Case{}, domain.ErrNotFound{Entity: domain.EntityCase, ID: id}
	}
	before := cloneCase(current)
	if err := mutator(&current); err != nil {
		return Case{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.cases[id] = cloneCase(current)
	tx.recordChange(domain.EntityCase, domain.ActionUpdate, before, current)
	return cloneCase(current), nil
}

// FindCase retrieves a case from the transactional state.
func (tx *transaction) FindCase(id string) (Case, bool) {
	return tx.Snapshot().FindCase(id)
}

// CreateStageRecord stores a new stage record within the transaction.
func (tx *transaction) CreateStageRecord(r StageRecord) (StageRecord, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.stageRecords[r.ID]; exists {
		return StageRecord{}, fmt.Errorf("stage record %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.stageRecords[r.ID] = cloneStageRecord(r)
	tx.recordChange(domain.EntityStageRecord, domain.ActionCreate, nil, r)
	return cloneStageRecord(r), nil
}

// UpdateStageRecord mutates a stage record using the provided mutator.
func (tx *transaction) UpdateStageRecord(id string, mutator func(*StageRecord) error) (StageRecord, error) {
	current, ok := tx.state.stageRecords[id]
	if !ok {
		return StageRecord{}, domain.ErrNotFound{Entity: domain.EntityStageRecord, ID: id}
	}
	before := cloneStageRecord(current)
	if err := mutator(&current); err != nil {
		return StageRecord{}, err
	}
	current.ID = id
	current.CaseID = before.CaseID
	current.Kind = before.Kind
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.stageRecords[id] = cloneStageRecord(current)
	tx.recordChange(domain.EntityStageRecord, domain.ActionUpdate, before, current)
	return cloneStageRecord(current), nil
}

// DeleteStageRecord removes a stage record from the transaction state.
func (tx *transaction) DeleteStageRecord(id string) error {
	current, ok := tx.state.stageRecords[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityStageRecord, ID: id}
	}
	delete(tx.state.stageRecords, id)
	tx.recordChange(domain.EntityStageRecord, domain.ActionDelete, current, nil)
	return nil
}

// FindStageRecord retrieves a stage record from the transactional state.
func (tx *transaction) FindStageRecord(id string) (StageRecord, bool) {
	return tx.Snapshot().FindStageRecord(id)
}

// StageRecordsOfKind lists a case's records of one kind from the
// transactional state.
func (tx *transaction) StageRecordsOfKind(caseID string, kind domain.StageKind) []StageRecord {
	return tx.Snapshot().StageRecordsOfKind(caseID, kind)
}

// AppendAuditEntry adds an immutable audit entry. There is no update or
// delete counterpart.
func (tx *transaction) AppendAuditEntry(e AuditEntry) (AuditEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.auditEntries[e.ID]; exists {
		return AuditEntry{}, fmt.Errorf("audit entry %q already exists", e.ID)
	}
	tx.state.auditSeq++
	e.Seq = tx.state.auditSeq
	e.CreatedAt = tx.now
	tx.state.auditEntries[e.ID] = cloneAuditEntry(e)
	tx.recordChange(domain.EntityAuditEntry, domain.ActionCreate, nil, e)
	return cloneAuditEntry(e), nil
}

// ConsumeIdempotencyToken marks a token as spent, replacing any expired
// record under the same token.
func (tx *transaction) ConsumeIdempotencyToken(rec IdempotencyRecord) error {
	if rec.Token == "" {
		return fmt.Errorf("idempotency token required")
	}
	if existing, ok := tx.state.idempotency[rec.Token]; ok && tx.now.Before(existing.ExpiresAt) {
		return domain.ErrDuplicateRequest{Token: rec.Token}
	}
	tx.state.idempotency[rec.Token] = rec
	tx.recordChange(domain.EntityIdempotencyRecord, domain.ActionCreate, nil, rec)
	return nil
}

// FindIdempotencyRecord retrieves a consumed token from the transactional
// state.
func (tx *transaction) FindIdempotencyRecord(token string) (IdempotencyRecord, bool) {
	return tx.Snapshot().FindIdempotencyRecord(token)
}

// PruneIdempotencyRecords drops expired tokens and reports how many were
// removed.
func (tx *transaction) PruneIdempotencyRecords() int {
	removed := 0
	for token, rec := range tx.state.idempotency {
		if !tx.now.Before(rec.ExpiresAt) {
			delete(tx.state.idempotency, token)
			removed++
		}
	}
	return removed
}
