package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// StageOwnershipRule enforces stage record integrity: every record references
// an existing case, carries a known kind, and singleton kinds never accumulate
// more than one record per case.
func StageOwnershipRule() domain.Rule {
	return stageOwnershipRule{}
}

type stageOwnershipRule struct{}

func (stageOwnershipRule) Name() string { return "stage_record_ownership" }

func (r stageOwnershipRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	var result Result
	block := func(id, msg string) {
		result.Violations = append(result.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  msg,
			Entity:   EntityStageRecord,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != EntityStageRecord || change.Action == ActionDelete {
			continue
		}
		rec, ok := domain.DecodeChangePayload[StageRecord](change.After)
		if !ok {
			continue
		}
		if _, ok := stateByKind[rec.Kind]; !ok {
			block(rec.ID, fmt.Sprintf("unknown stage kind %q", rec.Kind))
			continue
		}
		if _, ok := view.FindCase(rec.CaseID); !ok {
			block(rec.ID, fmt.Sprintf("stage record references missing case %s", rec.CaseID))
			continue
		}
		if change.Action == ActionCreate && !rec.Kind.IsCollection() {
			if n := len(view.StageRecordsOfKind(rec.CaseID, rec.Kind)); n > 1 {
				block(rec.ID, fmt.Sprintf("%s is singleton-per-case but case %s holds %d records", rec.Kind, rec.CaseID, n))
			}
		}
	}
	return result, nil
}
