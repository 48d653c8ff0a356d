package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"procurecore/pkg/domain"
)

// DefaultIdempotencyWindow bounds how long a consumed token blocks replays.
const DefaultIdempotencyWindow = 24 * time.Hour

// TransitionRequest describes one attempted lifecycle transition.
type TransitionRequest struct {
	CaseID string
	Target State
	// Operation is the stage action label recorded in the audit trail and
	// used to scope idempotency tokens.
	Operation string
	Payload   map[string]any
	Actor     Actor
	// IdempotencyToken deduplicates client retries. Empty disables the check.
	IdempotencyToken string
}

// TransitionExecutor performs validated, atomic case transitions. Policy and
// prerequisite checks re-run against the transactional snapshot immediately
// before the write, closing the check-then-act race between validation and
// commit; the store serializes transactions on the same state.
type TransitionExecutor struct {
	store             PersistentStore
	policy            *TransitionPolicy
	validator         *PrerequisiteValidator
	perms             Permissions
	clock             Clock
	idempotencyWindow time.Duration
}

// NewTransitionExecutor wires the executor's collaborators.
func NewTransitionExecutor(store PersistentStore, policy *TransitionPolicy, validator *PrerequisiteValidator, perms Permissions, clock Clock, window time.Duration) *TransitionExecutor {
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	return &TransitionExecutor{
		store:             store,
		policy:            policy,
		validator:         validator,
		perms:             perms,
		clock:             clock,
		idempotencyWindow: window,
	}
}

// Execute moves the case to req.Target. Inside one transaction it re-reads
// the case, re-validates policy and prerequisites, writes the stage record
// and the new state, and appends exactly one audit entry. Rejections are
// typed; no audit entry is written for a rejected attempt.
func (e *TransitionExecutor) Execute(ctx context.Context, req TransitionRequest) (Case, StageRecord, error) {
	if !req.Actor.Role.Valid() {
		return Case{}, StageRecord{}, domain.ErrValidation{Field: "actor_role", Reason: "unknown role"}
	}
	kind, hasRecord := KindOfState(req.Target)
	if !e.perms.CanTransition(req.Actor.Role, req.Target) {
		return Case{}, StageRecord{}, domain.ErrPermissionDenied{Role: req.Actor.Role, Action: "transition", Kind: kind}
	}
	if err := e.consumeToken(ctx, req); err != nil {
		return Case{}, StageRecord{}, err
	}

	var (
		updated Case
		record  StageRecord
	)
	_, err := e.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindCase(req.CaseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: req.CaseID}
		}
		if !e.policy.Permits(current.Method, current.State, req.Target) {
			return domain.ErrTransitionNotAllowed{
				Method:    current.Method,
				From:      current.State,
				Attempted: req.Target,
				Allowed:   e.policy.Allowed(current.Method, current.State),
			}
		}
		if err := e.validator.Check(tx.Snapshot(), current, req.Target); err != nil {
			return err
		}

		if hasRecord && (req.Payload != nil || !kind.IsCollection()) {
			var err error
			record, err = upsertStageRecord(tx, current.ID, kind, req.Payload, req.Actor)
			if err != nil {
				return err
			}
		}

		var err error
		updated, err = tx.UpdateCase(current.ID, func(c *Case) error {
			c.State = req.Target
			return nil
		})
		if err != nil {
			return err
		}

		entry := AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    current.ID,
			Action:    AuditTransition,
			FromState: current.State,
			ToState:   req.Target,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Entity:    EntityCase,
			EntityID:  current.ID,
			Payload:   req.Payload,
		}
		if record.ID != "" {
			entry.Entity = EntityStageRecord
			entry.EntityID = record.ID
			entry.Kind = kind
		}
		_, err = tx.AppendAuditEntry(entry)
		return err
	})
	if err != nil {
		return Case{}, StageRecord{}, err
	}
	return updated, record, nil
}

// AppendRequest describes a member added to a collection stage without a
// state change.
type AppendRequest struct {
	CaseID    string
	Kind      StageKind
	Operation string
	Payload   map[string]any
	Actor     Actor
}

// Append adds a member to an append-only collection stage. The case must sit
// in the collection's own state; no state change occurs.
func (e *TransitionExecutor) Append(ctx context.Context, req AppendRequest) (StageRecord, error) {
	if !req.Actor.Role.Valid() {
		return StageRecord{}, domain.ErrValidation{Field: "actor_role", Reason: "unknown role"}
	}
	if !req.Kind.IsCollection() {
		return StageRecord{}, domain.ErrValidation{Field: "kind", Reason: string(req.Kind) + " is not a collection stage"}
	}
	if !e.perms.CanMutate(req.Actor.Role, req.Kind) {
		return StageRecord{}, domain.ErrPermissionDenied{Role: req.Actor.Role, Action: "append", Kind: req.Kind}
	}

	var record StageRecord
	_, err := e.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindCase(req.CaseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: req.CaseID}
		}
		stageState, _ := StateOfKind(req.Kind)
		if current.State != stageState {
			return domain.ErrTransitionNotAllowed{
				Method:    current.Method,
				From:      current.State,
				Attempted: stageState,
				Allowed:   e.policy.Allowed(current.Method, current.State),
			}
		}
		var err error
		record, err = tx.CreateStageRecord(StageRecord{
			CaseID:    current.ID,
			Kind:      req.Kind,
			Fields:    req.Payload,
			CreatedBy: req.Actor.ID,
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendAuditEntry(AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    current.ID,
			Action:    AuditAppend,
			FromState: current.State,
			ToState:   current.State,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Entity:    EntityStageRecord,
			EntityID:  record.ID,
			Kind:      req.Kind,
			Payload:   req.Payload,
		})
		return err
	})
	if err != nil {
		return StageRecord{}, err
	}
	return record, nil
}

// Attach upserts an auxiliary singleton record (such as the check advice) at
// the case's current stage without changing state.
func (e *TransitionExecutor) Attach(ctx context.Context, req AppendRequest) (StageRecord, error) {
	if !req.Actor.Role.Valid() {
		return StageRecord{}, domain.ErrValidation{Field: "actor_role", Reason: "unknown role"}
	}
	if !e.perms.CanMutate(req.Actor.Role, req.Kind) {
		return StageRecord{}, domain.ErrPermissionDenied{Role: req.Actor.Role, Action: "append", Kind: req.Kind}
	}
	var record StageRecord
	_, err := e.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindCase(req.CaseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: req.CaseID}
		}
		stageState, ok := StateOfKind(req.Kind)
		if !ok || current.State != stageState {
			return domain.ErrTransitionNotAllowed{
				Method:    current.Method,
				From:      current.State,
				Attempted: stageState,
				Allowed:   e.policy.Allowed(current.Method, current.State),
			}
		}
		var err error
		record, err = upsertStageRecord(tx, current.ID, req.Kind, req.Payload, req.Actor)
		if err != nil {
			return err
		}
		_, err = tx.AppendAuditEntry(AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    current.ID,
			Action:    AuditAppend,
			FromState: current.State,
			ToState:   current.State,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Entity:    EntityStageRecord,
			EntityID:  record.ID,
			Kind:      req.Kind,
			Payload:   req.Payload,
		})
		return err
	})
	if err != nil {
		return StageRecord{}, err
	}
	return record, nil
}

// consumeToken spends the idempotency token in its own transaction so the
// token is consumed exactly once within the window regardless of how the
// following transition transaction ends.
func (e *TransitionExecutor) consumeToken(ctx context.Context, req TransitionRequest) error {
	if req.IdempotencyToken == "" {
		return nil
	}
	now := e.clock.Now()
	_, err := e.store.RunInTransaction(ctx, func(tx Transaction) error {
		tx.PruneIdempotencyRecords()
		if existing, ok := tx.FindIdempotencyRecord(req.IdempotencyToken); ok && now.Before(existing.ExpiresAt) {
			return domain.ErrDuplicateRequest{Token: req.IdempotencyToken}
		}
		return tx.ConsumeIdempotencyToken(IdempotencyRecord{
			Token:      req.IdempotencyToken,
			CaseID:     req.CaseID,
			Operation:  req.Operation,
			Actor:      req.Actor.ID,
			ConsumedAt: now,
			ExpiresAt:  now.Add(e.idempotencyWindow),
		})
	})
	return err
}

// upsertStageRecord creates the stage record on first arrival at a stage, or
// replaces a singleton's fields on re-entry. Collection kinds always append.
func upsertStageRecord(tx Transaction, caseID string, kind StageKind, payload map[string]any, actor Actor) (StageRecord, error) {
	if !kind.IsCollection() {
		if existing := tx.StageRecordsOfKind(caseID, kind); len(existing) > 0 {
			return tx.UpdateStageRecord(existing[0].ID, func(r *StageRecord) error {
				r.Fields = payload
				return nil
			})
		}
	}
	return tx.CreateStageRecord(StageRecord{
		CaseID:    caseID,
		Kind:      kind,
		Fields:    payload,
		CreatedBy: actor.ID,
	})
}
