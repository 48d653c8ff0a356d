package main

import (
	"strings"
	"testing"
	"time"

	"procurecore/internal/infra/persistence/memory"
	"procurecore/pkg/domain"
)

func snapshotStore(t *testing.T, snap memory.Snapshot) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	store.ImportState(snap)
	return store
}

func baseCase(id string, method domain.Method, state domain.State) domain.Case {
	return domain.Case{
		Base:   domain.Base{ID: id, CreatedAt: time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)},
		Title:  "verified case",
		Method: method,
		State:  state,
	}
}

func TestVerifyCleanStore(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateRFQIssued),
		},
		StageRecords: map[string]domain.StageRecord{
			"r-1": {Base: domain.Base{ID: "r-1"}, CaseID: "c-1", Kind: domain.StageRFQ},
		},
		AuditEntries: map[string]domain.AuditEntry{
			"a-1": {ID: "a-1", Seq: 1, CaseID: "c-1", Action: domain.AuditTransition, FromState: domain.StateDraft, ToState: domain.StateRFQIssued},
		},
		AuditSeq: 1,
	})
	if problems := verify(store); len(problems) != 0 {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyFlagsUnknownState(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.State("limbo")),
		},
	})
	problems := verify(store)
	if len(problems) != 1 || !strings.Contains(problems[0].Detail, "limbo") {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyFlagsRFQOnlyStateForBidding(t *testing.T) {
	// quotation_collection belongs to the RFQ track; a bidding case cannot
	// sit there.
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodPublicBidding, domain.StateQuotationCollection),
		},
	})
	if problems := verify(store); len(problems) != 1 {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyFlagsDuplicateSingleton(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateRFQIssued),
		},
		StageRecords: map[string]domain.StageRecord{
			"r-1": {Base: domain.Base{ID: "r-1"}, CaseID: "c-1", Kind: domain.StageRFQ},
			"r-2": {Base: domain.Base{ID: "r-2"}, CaseID: "c-1", Kind: domain.StageRFQ},
		},
	})
	problems := verify(store)
	if len(problems) != 1 || !strings.Contains(problems[0].Detail, "singleton") {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyAllowsCollectionDuplicates(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateQuotationCollection),
		},
		StageRecords: map[string]domain.StageRecord{
			"r-1": {Base: domain.Base{ID: "r-1"}, CaseID: "c-1", Kind: domain.StageQuotation},
			"r-2": {Base: domain.Base{ID: "r-2"}, CaseID: "c-1", Kind: domain.StageQuotation},
			"r-3": {Base: domain.Base{ID: "r-3"}, CaseID: "c-1", Kind: domain.StageQuotation},
		},
	})
	if problems := verify(store); len(problems) != 0 {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyFlagsBrokenAuditSequence(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateDraft),
		},
		AuditEntries: map[string]domain.AuditEntry{
			"a-1": {ID: "a-1", Seq: 5, CaseID: "c-1", Action: domain.AuditAppend, FromState: domain.StateDraft, ToState: domain.StateDraft},
			"a-2": {ID: "a-2", Seq: 5, CaseID: "c-1", Action: domain.AuditAppend, FromState: domain.StateDraft, ToState: domain.StateDraft},
		},
		AuditSeq: 5,
	})
	problems := verify(store)
	if len(problems) != 1 || !strings.Contains(problems[0].Detail, "sequence") {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyFlagsImpossibleRecordedTransition(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateCheck),
		},
		AuditEntries: map[string]domain.AuditEntry{
			"a-1": {ID: "a-1", Seq: 1, CaseID: "c-1", Action: domain.AuditTransition, FromState: domain.StateDraft, ToState: domain.StateCheck},
		},
		AuditSeq: 1,
	})
	problems := verify(store)
	if len(problems) != 1 || !strings.Contains(problems[0].Detail, "impossible transition") {
		t.Fatalf("problems = %+v", problems)
	}
}

func TestVerifyAllowsRecordedRollback(t *testing.T) {
	store := snapshotStore(t, memory.Snapshot{
		Cases: map[string]domain.Case{
			"c-1": baseCase("c-1", domain.MethodSmallValueRFQ, domain.StateInspection),
		},
		AuditEntries: map[string]domain.AuditEntry{
			"a-1": {ID: "a-1", Seq: 1, CaseID: "c-1", Action: domain.AuditTransition, FromState: domain.StateDV, ToState: domain.StateInspection},
		},
		AuditSeq: 1,
	})
	if problems := verify(store); len(problems) != 0 {
		t.Fatalf("problems = %+v", problems)
	}
}
