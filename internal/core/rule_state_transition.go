package core

import (
	"context"
	"fmt"

	"procurecore/pkg/domain"
)

// StateTransitionRule blocks any case state change that is neither a policy
// edge nor a backward move along the method sequence. Forward moves happen
// only through the executor; backward moves only through the mutation guard's
// rollback path. The rule is the commit-time backstop behind both.
func StateTransitionRule(policy *TransitionPolicy, resolver *RollbackResolver) domain.Rule {
	return stateTransitionRule{policy: policy, resolver: resolver}
}

type stateTransitionRule struct {
	policy   *TransitionPolicy
	resolver *RollbackResolver
}

func (stateTransitionRule) Name() string { return "case_state_transition" }

func (r stateTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Entity != EntityCase {
			continue
		}
		after, ok := domain.DecodeChangePayload[Case](change.After)
		if !ok {
			continue
		}
		if !r.policy.Known(after.Method, after.State) {
			result.Violations = append(result.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("state %q is not part of the %s lifecycle", after.State, after.Method),
				Entity:   EntityCase,
				EntityID: after.ID,
			})
			continue
		}
		if change.Action != ActionUpdate {
			continue
		}
		before, ok := domain.DecodeChangePayload[Case](change.Before)
		if !ok || before.State == after.State {
			continue
		}
		if r.policy.Permits(after.Method, before.State, after.State) {
			continue
		}
		fromPos, fromOK := r.resolver.table.Position(after.Method, before.State)
		toPos, toOK := r.resolver.table.Position(after.Method, after.State)
		if fromOK && toOK && toPos < fromPos {
			continue
		}
		result.Violations = append(result.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("case may not move from %s to %s under %s", before.State, after.State, after.Method),
			Entity:   EntityCase,
			EntityID: after.ID,
		})
	}
	return result, nil
}
