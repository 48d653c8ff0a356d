package core

import "procurecore/pkg/domain"

// Each method has one canonical ordered state sequence. The policy graph
// spines, the mutation guard's "what comes after X" lookups, and rollback
// predecessors are all derived from these tables rather than hand-written
// per stage kind.

var methodSequences = map[Method][]State{
	domain.MethodSmallValueRFQ: {
		domain.StateDraft,
		domain.StatePosting,
		domain.StateRFQIssued,
		domain.StateQuotationCollection,
		domain.StateAbstractOfQuotations,
		domain.StateBACResolution,
		domain.StateAwarded,
		domain.StatePOApproved,
		domain.StateContractSigned,
		domain.StateNTPIssued,
		domain.StateDelivery,
		domain.StateInspection,
		domain.StateAcceptance,
		domain.StateORS,
		domain.StateDV,
		domain.StateCheck,
		domain.StateClosed,
	},
	domain.MethodPublicBidding: {
		domain.StateDraft,
		domain.StatePosting,
		domain.StateBidBulletin,
		domain.StatePreBidConference,
		domain.StateBidSubmissionOpening,
		domain.StateTWGEvaluation,
		domain.StatePostQualification,
		domain.StateBACResolution,
		domain.StateAwarded,
		domain.StatePOApproved,
		domain.StateContractSigned,
		domain.StateNTPIssued,
		domain.StateDelivery,
		domain.StateInspection,
		domain.StateAcceptance,
		domain.StateORS,
		domain.StateDV,
		domain.StateCheck,
		domain.StateClosed,
	},
	domain.MethodInfrastructure: {
		domain.StateDraft,
		domain.StatePosting,
		domain.StateBidBulletin,
		domain.StatePreBidConference,
		domain.StateBidSubmissionOpening,
		domain.StateTWGEvaluation,
		domain.StatePostQualification,
		domain.StateBACResolution,
		domain.StateAwarded,
		domain.StatePOApproved,
		domain.StateContractSigned,
		domain.StateNTPIssued,
		domain.StateProgressBilling,
		domain.StatePMTInspection,
		domain.StateAcceptance,
		domain.StateORS,
		domain.StateDV,
		domain.StateCheck,
		domain.StateClosed,
	},
}

// stateByKind maps each stage kind to the lifecycle state it witnesses.
// CheckAdvice is auxiliary to the check stage and has no state of its own.
var stateByKind = map[StageKind]State{
	domain.StageRFQ:                  domain.StateRFQIssued,
	domain.StageQuotation:            domain.StateQuotationCollection,
	domain.StageAbstractOfQuotations: domain.StateAbstractOfQuotations,
	domain.StageBACResolution:        domain.StateBACResolution,
	domain.StageAward:                domain.StateAwarded,
	domain.StagePurchaseOrder:        domain.StatePOApproved,
	domain.StageContract:             domain.StateContractSigned,
	domain.StageNoticeToProceed:      domain.StateNTPIssued,
	domain.StageBidBulletin:          domain.StateBidBulletin,
	domain.StagePreBidConference:     domain.StatePreBidConference,
	domain.StageBid:                  domain.StateBidSubmissionOpening,
	domain.StageTWGEvaluation:        domain.StateTWGEvaluation,
	domain.StagePostQualification:    domain.StatePostQualification,
	domain.StageProgressBilling:      domain.StateProgressBilling,
	domain.StagePMTInspectionReport:  domain.StatePMTInspection,
	domain.StageDelivery:             domain.StateDelivery,
	domain.StageInspectionReport:     domain.StateInspection,
	domain.StageAcceptance:           domain.StateAcceptance,
	domain.StageORS:                  domain.StateORS,
	domain.StageDV:                   domain.StateDV,
	domain.StageCheck:                domain.StateCheck,
	domain.StageCheckAdvice:          domain.StateCheck,
}

// kindByState is the inverse of stateByKind for states that create a record.
// Draft, posting, and closed are record-less; check maps to the check record,
// with check_advice handled as an auxiliary kind.
var kindByState = map[State]StageKind{
	domain.StateRFQIssued:            domain.StageRFQ,
	domain.StateQuotationCollection:  domain.StageQuotation,
	domain.StateAbstractOfQuotations: domain.StageAbstractOfQuotations,
	domain.StateBACResolution:        domain.StageBACResolution,
	domain.StateAwarded:              domain.StageAward,
	domain.StatePOApproved:           domain.StagePurchaseOrder,
	domain.StateContractSigned:       domain.StageContract,
	domain.StateNTPIssued:            domain.StageNoticeToProceed,
	domain.StateBidBulletin:          domain.StageBidBulletin,
	domain.StatePreBidConference:     domain.StagePreBidConference,
	domain.StateBidSubmissionOpening: domain.StageBid,
	domain.StateTWGEvaluation:        domain.StageTWGEvaluation,
	domain.StatePostQualification:    domain.StagePostQualification,
	domain.StateProgressBilling:      domain.StageProgressBilling,
	domain.StatePMTInspection:        domain.StagePMTInspectionReport,
	domain.StateDelivery:             domain.StageDelivery,
	domain.StateInspection:           domain.StageInspectionReport,
	domain.StateAcceptance:           domain.StageAcceptance,
	domain.StateORS:                  domain.StageORS,
	domain.StateDV:                   domain.StageDV,
	domain.StateCheck:                domain.StageCheck,
}

// auxiliaryKinds lists stage kinds created at (and therefore downstream of)
// another kind's stage.
var auxiliaryKinds = map[StageKind][]StageKind{
	domain.StageCheck: {domain.StageCheckAdvice},
}

// StateOfKind returns the lifecycle state a stage kind witnesses.
func StateOfKind(kind StageKind) (State, bool) {
	s, ok := stateByKind[kind]
	return s, ok
}

// KindOfState returns the stage kind created on reaching a state, if any.
func KindOfState(state State) (StageKind, bool) {
	k, ok := kindByState[state]
	return k, ok
}

// StageTable answers positional questions about one method's canonical
// sequence. Instances are immutable after construction.
type StageTable struct {
	sequences map[Method][]State
	positions map[Method]map[State]int
}

// NewStageTable builds the positional index over the canonical sequences.
func NewStageTable() *StageTable {
	t := &StageTable{
		sequences: methodSequences,
		positions: make(map[Method]map[State]int, len(methodSequences)),
	}
	for method, seq := range methodSequences {
		idx := make(map[State]int, len(seq))
		for i, s := range seq {
			idx[s] = i
		}
		t.positions[method] = idx
	}
	return t
}

// Sequence returns the canonical state order for a method.
func (t *StageTable) Sequence(method Method) []State {
	seq := t.sequences[method]
	out := make([]State, len(seq))
	copy(out, seq)
	return out
}

// Position returns a state's index within the method sequence.
func (t *StageTable) Position(method Method, state State) (int, bool) {
	idx, ok := t.positions[method]
	if !ok {
		return 0, false
	}
	pos, ok := idx[state]
	return pos, ok
}

// DownstreamKinds returns every stage kind that witnesses a state strictly
// after the given kind's state in the method sequence, plus auxiliary kinds
// created at the same stage.
func (t *StageTable) DownstreamKinds(method Method, kind StageKind) []StageKind {
	state, ok := stateByKind[kind]
	if !ok {
		return nil
	}
	pos, ok := t.Position(method, state)
	if !ok {
		return nil
	}
	var out []StageKind
	out = append(out, auxiliaryKinds[kind]...)
	for _, s := range t.sequences[method][pos+1:] {
		k, ok := kindByState[s]
		if !ok {
			continue
		}
		out = append(out, k)
		out = append(out, auxiliaryKinds[k]...)
	}
	return out
}

// RollbackResolver maps a case state to the state immediately preceding it in
// the case method's canonical sequence. It is consulted only when a stage
// record is deleted.
type RollbackResolver struct {
	table *StageTable
}

// NewRollbackResolver constructs a resolver over the canonical sequences.
func NewRollbackResolver() *RollbackResolver {
	return &RollbackResolver{table: NewStageTable()}
}

// Previous returns the predecessor of state for the given method. Draft has no
// predecessor; ok is false for draft and for states outside the method graph.
func (r *RollbackResolver) Previous(method Method, state State) (State, bool) {
	pos, found := r.table.Position(method, state)
	if !found || pos == 0 {
		return "", false
	}
	return r.table.sequences[method][pos-1], true
}
