package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// AuditImmutabilityRule blocks any mutation of an existing audit entry. The
// audit trail is append-only; the store offers no update or delete path, and
// this rule keeps that contract even against future transaction helpers.
func AuditImmutabilityRule() domain.Rule {
	return auditImmutabilityRule{}
}

type auditImmutabilityRule struct{}

func (auditImmutabilityRule) Name() string { return "audit_trail_immutability" }

func (r auditImmutabilityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Entity != EntityAuditEntry || change.Action == ActionCreate {
			continue
		}
		entry, _ := domain.DecodeChangePayload[AuditEntry](change.Before)
		result.Violations = append(result.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("audit entries are immutable; attempted %s", change.Action),
			Entity:   EntityAuditEntry,
			EntityID: entry.ID,
		})
	}
	return result, nil
}
