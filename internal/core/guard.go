package core

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"procurecore/pkg/domain"
)

// Decision is the outcome of a mutation guard check.
type Decision string

// Guard decisions. Refusals are typed errors rather than decision values.
const (
	// DecisionAllowed permits the mutation with no special capability.
	DecisionAllowed Decision = "allowed"
	// DecisionAllowedWithOverride permits the mutation only because the actor
	// carries the admin override capability; an out-of-band alert is emitted.
	DecisionAllowedWithOverride Decision = "allowed_with_override"
)

// MutationGuard governs non-transition mutations of already-created stage
// records: permission, downstream-dependency detection, admin override, and
// the state rollback a delete implies.
type MutationGuard struct {
	store    PersistentStore
	table    *StageTable
	resolver *RollbackResolver
	perms    Permissions
	notifier Notifier
}

// NewMutationGuard wires the guard's collaborators.
func NewMutationGuard(store PersistentStore, table *StageTable, resolver *RollbackResolver, perms Permissions, notifier Notifier) *MutationGuard {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MutationGuard{store: store, table: table, resolver: resolver, perms: perms, notifier: notifier}
}

// ValidateEdit checks whether role may edit records of kind on the case. The
// returned decision distinguishes plain permission from an override grant.
func (g *MutationGuard) ValidateEdit(view TransactionView, c Case, kind StageKind, role Role) (Decision, error) {
	return g.validate(view, c, kind, role, "edit")
}

// ValidateDelete is the delete-side counterpart of ValidateEdit.
func (g *MutationGuard) ValidateDelete(view TransactionView, c Case, kind StageKind, role Role) (Decision, error) {
	return g.validate(view, c, kind, role, "delete")
}

func (g *MutationGuard) validate(view TransactionView, c Case, kind StageKind, role Role, action string) (Decision, error) {
	if !g.perms.CanMutate(role, kind) {
		return "", domain.ErrPermissionDenied{Role: role, Action: action, Kind: kind}
	}
	blocking := g.downstreamData(view, c, kind)
	if len(blocking) == 0 {
		return DecisionAllowed, nil
	}
	if !g.perms.HasOverride(role) {
		return "", domain.ErrDownstreamBlocked{Kind: kind, Blocking: blocking}
	}
	return DecisionAllowedWithOverride, nil
}

// downstreamData returns the downstream stage kinds that already hold records
// for the case, derived from the method's ordered stage sequence.
func (g *MutationGuard) downstreamData(view TransactionView, c Case, kind StageKind) []StageKind {
	var blocking []StageKind
	for _, later := range g.table.DownstreamKinds(c.Method, kind) {
		if len(view.StageRecordsOfKind(c.ID, later)) > 0 {
			blocking = append(blocking, later)
		}
	}
	return blocking
}

// MutationRequest describes an edit or delete of one stage record.
type MutationRequest struct {
	CaseID string
	Kind   StageKind
	// RecordID selects the member of a collection kind. Singleton kinds
	// resolve their only record when RecordID is empty.
	RecordID string
	// Fields replaces the record payload on edit; ignored on delete.
	Fields map[string]any
	// Reason is mandatory and persisted verbatim into the audit entry.
	Reason string
	Actor  Actor
}

// Edit rewrites a stage record's fields. State never changes on edit. The
// audit entry carries before and after snapshots plus the caller's reason.
func (g *MutationGuard) Edit(ctx context.Context, req MutationRequest) (StageRecord, error) {
	if err := validateMutationRequest(req); err != nil {
		return StageRecord{}, err
	}

	var (
		updated  StageRecord
		decision Decision
	)
	_, err := g.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindCase(req.CaseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: req.CaseID}
		}
		target, err := resolveStageRecord(tx, req)
		if err != nil {
			return err
		}
		decision, err = g.ValidateEdit(tx.Snapshot(), current, req.Kind, req.Actor.Role)
		if err != nil {
			return err
		}
		before := target.Fields
		updated, err = tx.UpdateStageRecord(target.ID, func(r *StageRecord) error {
			r.Fields = req.Fields
			return nil
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendAuditEntry(AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    current.ID,
			Action:    AuditEdit,
			FromState: current.State,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Entity:    EntityStageRecord,
			EntityID:  target.ID,
			Kind:      req.Kind,
			Reason:    req.Reason,
			Payload: map[string]any{
				"before": before,
				"after":  req.Fields,
			},
		})
		return err
	})
	if err != nil {
		return StageRecord{}, err
	}
	if decision == DecisionAllowedWithOverride {
		g.notifier.NotifyOverride(ctx, OverrideAlert{
			CaseID:    req.CaseID,
			Action:    AuditEdit,
			Kind:      req.Kind,
			RecordID:  updated.ID,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Reason:    req.Reason,
		})
	}
	return updated, nil
}

// Delete removes a stage record. When the kind's last record goes, the case
// state rolls back to the state immediately preceding the deleted stage in
// the method sequence.
func (g *MutationGuard) Delete(ctx context.Context, req MutationRequest) (Case, error) {
	if err := validateMutationRequest(req); err != nil {
		return Case{}, err
	}

	var (
		result   Case
		deleted  StageRecord
		decision Decision
	)
	_, err := g.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindCase(req.CaseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: req.CaseID}
		}
		target, err := resolveStageRecord(tx, req)
		if err != nil {
			return err
		}
		decision, err = g.ValidateDelete(tx.Snapshot(), current, req.Kind, req.Actor.Role)
		if err != nil {
			return err
		}
		if err := tx.DeleteStageRecord(target.ID); err != nil {
			return err
		}
		deleted = target

		result = current
		toState := current.State
		if len(tx.StageRecordsOfKind(current.ID, req.Kind)) == 0 {
			if next, ok := g.rollbackState(current, req.Kind); ok {
				result, err = tx.UpdateCase(current.ID, func(c *Case) error {
					c.State = next
					return nil
				})
				if err != nil {
					return err
				}
				toState = next
			}
		}
		_, err = tx.AppendAuditEntry(AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    current.ID,
			Action:    AuditDelete,
			FromState: current.State,
			ToState:   toState,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Entity:    EntityStageRecord,
			EntityID:  target.ID,
			Kind:      req.Kind,
			Reason:    req.Reason,
			Payload:   map[string]any{"deleted": target.Fields},
		})
		return err
	})
	if err != nil {
		return Case{}, err
	}
	if decision == DecisionAllowedWithOverride {
		g.notifier.NotifyOverride(ctx, OverrideAlert{
			CaseID:    req.CaseID,
			Action:    AuditDelete,
			Kind:      req.Kind,
			RecordID:  deleted.ID,
			Actor:     req.Actor.ID,
			ActorRole: req.Actor.Role,
			Reason:    req.Reason,
		})
	}
	return result, nil
}

// rollbackState resolves the state the case should fall back to after the
// kind's last record was deleted: the predecessor of the deleted stage. When
// the case never advanced to the deleted stage, the state is left alone.
func (g *MutationGuard) rollbackState(c Case, kind StageKind) (State, bool) {
	stageState, ok := StateOfKind(kind)
	if !ok {
		return "", false
	}
	// Auxiliary kinds share a state with a primary kind; losing the last
	// auxiliary record does not undo the stage itself.
	if primary, ok := KindOfState(stageState); !ok || primary != kind {
		return "", false
	}
	stagePos, ok := g.table.Position(c.Method, stageState)
	if !ok {
		return "", false
	}
	currentPos, ok := g.table.Position(c.Method, c.State)
	if !ok || currentPos < stagePos {
		return "", false
	}
	return g.resolver.Previous(c.Method, stageState)
}

func validateMutationRequest(req MutationRequest) error {
	if !req.Actor.Role.Valid() {
		return domain.ErrValidation{Field: "actor_role", Reason: "unknown role"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ErrValidation{Field: "reason", Reason: "a non-empty reason is required"}
	}
	return nil
}

// resolveStageRecord locates the record a mutation targets within the
// transaction snapshot.
func resolveStageRecord(tx Transaction, req MutationRequest) (StageRecord, error) {
	records := tx.StageRecordsOfKind(req.CaseID, req.Kind)
	if req.RecordID == "" {
		if req.Kind.IsCollection() && len(records) > 1 {
			return StageRecord{}, domain.ErrValidation{Field: "record_id", Reason: "record id required for collection stages"}
		}
		if len(records) == 0 {
			return StageRecord{}, domain.ErrNotFound{Entity: EntityStageRecord, ID: string(req.Kind)}
		}
		return records[0], nil
	}
	for _, rec := range records {
		if rec.ID == req.RecordID {
			return rec, nil
		}
	}
	return StageRecord{}, domain.ErrNotFound{Entity: EntityStageRecord, ID: req.RecordID}
}
