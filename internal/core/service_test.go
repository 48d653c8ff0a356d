package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"procurecore/internal/infra/persistence/memory"
	"procurecore/pkg/domain"
)

var (
	procurement = Actor{ID: "alice", Role: domain.RoleProcurement}
	supply      = Actor{ID: "ben", Role: domain.RoleSupply}
	budgetActor = Actor{ID: "carla", Role: domain.RoleBudget}
	accounting  = Actor{ID: "dina", Role: domain.RoleAccounting}
	cashier     = Actor{ID: "eli", Role: domain.RoleCashier}
	admin       = Actor{ID: "root", Role: domain.RoleAdmin}
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

func createCase(t *testing.T, svc *Service, method Method) Case {
	t.Helper()
	c, err := svc.CreateCase(context.Background(), Case{
		Title:           "office supplies",
		Office:          "general services",
		EstimatedBudget: 150000,
		Method:          method,
	}, procurement)
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.State != domain.StateDraft {
		t.Fatalf("new case state = %s, want draft", c.State)
	}
	return c
}

func wantErrAs[T error](t *testing.T, err error) {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("got error %v (%T), want %T", err, err, target)
	}
}

// advanceSmallValue drives a small-value case along the canonical sequence,
// stopping once upTo is reached.
func advanceSmallValue(t *testing.T, svc *Service, id string, upTo State) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		state State
		run   func() error
	}{
		{domain.StateRFQIssued, func() error {
			_, _, err := svc.IssueRFQ(ctx, id, map[string]any{"number": "RFQ-2026-001"}, procurement, "")
			return err
		}},
		{domain.StateQuotationCollection, func() error {
			for _, supplier := range []string{"acme", "globex", "initech"} {
				if _, _, err := svc.AddQuotation(ctx, id, map[string]any{"supplier": supplier, "amount": 120000}, procurement, ""); err != nil {
					return err
				}
			}
			return nil
		}},
		{domain.StateAbstractOfQuotations, func() error {
			_, _, err := svc.RecordAbstract(ctx, id, map[string]any{"lowest": "acme"}, procurement, "")
			return err
		}},
		{domain.StateBACResolution, func() error {
			_, _, err := svc.RecordBACResolution(ctx, id, map[string]any{"resolution": "BAC-07"}, procurement, "")
			return err
		}},
		{domain.StateAwarded, func() error {
			_, _, err := svc.RecordAward(ctx, id, map[string]any{"supplier": "acme"}, procurement, "")
			return err
		}},
		{domain.StatePOApproved, func() error {
			_, _, err := svc.ApprovePurchaseOrder(ctx, id, map[string]any{"po_number": "PO-55"}, procurement, "")
			return err
		}},
		{domain.StateContractSigned, func() error {
			_, _, err := svc.SignContract(ctx, id, map[string]any{"contract": "C-55"}, procurement, "")
			return err
		}},
		{domain.StateNTPIssued, func() error {
			_, _, err := svc.IssueNTP(ctx, id, map[string]any{"ntp": "NTP-55"}, procurement, "")
			return err
		}},
		{domain.StateDelivery, func() error {
			_, _, err := svc.AddDelivery(ctx, id, map[string]any{"dr_number": "DR-1"}, supply, "")
			return err
		}},
		{domain.StateInspection, func() error {
			_, _, err := svc.RecordInspection(ctx, id, map[string]any{"status": "PASSED"}, supply, "")
			return err
		}},
		{domain.StateAcceptance, func() error {
			_, _, err := svc.RecordAcceptance(ctx, id, map[string]any{"accepted_by": "ben"}, supply, "")
			return err
		}},
		{domain.StateORS, func() error {
			_, _, err := svc.PrepareORS(ctx, id, map[string]any{"ors_number": "ORS-9"}, budgetActor, "")
			return err
		}},
		{domain.StateDV, func() error {
			_, _, err := svc.PrepareDV(ctx, id, map[string]any{"dv_number": "DV-9"}, accounting, "")
			return err
		}},
		{domain.StateCheck, func() error {
			_, _, err := svc.IssueCheck(ctx, id, map[string]any{"check_number": "CHK-9"}, cashier, "")
			return err
		}},
		{domain.StateClosed, func() error {
			_, err := svc.CloseCase(ctx, id, procurement, "")
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("advance to %s: %v", step.state, err)
		}
		if step.state == upTo {
			return
		}
	}
}

func TestCreateCaseValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCase(ctx, Case{Title: "x", Method: domain.MethodSmallValueRFQ}, Actor{ID: "a", Role: "clerk"})
	wantErrAs[domain.ErrValidation](t, err)

	_, err = svc.CreateCase(ctx, Case{Title: "   ", Method: domain.MethodSmallValueRFQ}, procurement)
	wantErrAs[domain.ErrValidation](t, err)

	_, err = svc.CreateCase(ctx, Case{Title: "x", Method: "negotiated"}, procurement)
	wantErrAs[domain.ErrValidation](t, err)
}

func TestSmallValueLifecycleEndToEnd(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateClosed)

	final, err := svc.GetCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if final.State != domain.StateClosed {
		t.Fatalf("final state = %s, want closed", final.State)
	}

	if got := len(svc.StageRecords(context.Background(), c.ID, domain.StageQuotation)); got != 3 {
		t.Fatalf("quotations = %d, want 3", got)
	}

	entries := svc.AuditTrail(context.Background(), c.ID, false)
	// 15 transitions plus 2 appended quotations.
	if len(entries) != 17 {
		t.Fatalf("audit entries = %d, want 17", len(entries))
	}
	if entries[0].FromState != domain.StateDraft {
		t.Fatalf("first entry from %s, want draft", entries[0].FromState)
	}
	if last := entries[len(entries)-1]; last.ToState != domain.StateClosed || last.Action != domain.AuditTransition {
		t.Fatalf("last entry = %s -> %s", last.Action, last.ToState)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("audit seq not strictly increasing at %d: %d after %d", i, entries[i].Seq, entries[i-1].Seq)
		}
	}
}

func TestAbstractRequiresQuotationMinimum(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	if _, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("IssueRFQ: %v", err)
	}
	for _, supplier := range []string{"acme", "globex"} {
		if _, _, err := svc.AddQuotation(ctx, c.ID, map[string]any{"supplier": supplier}, procurement, ""); err != nil {
			t.Fatalf("AddQuotation: %v", err)
		}
	}
	_, _, err := svc.RecordAbstract(ctx, c.ID, nil, procurement, "")
	wantErrAs[domain.ErrPrerequisiteNotMet](t, err)

	if _, _, err := svc.AddQuotation(ctx, c.ID, map[string]any{"supplier": "initech"}, procurement, ""); err != nil {
		t.Fatalf("AddQuotation: %v", err)
	}
	if _, _, err := svc.RecordAbstract(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("RecordAbstract after third quotation: %v", err)
	}
}

func TestQuotationMinimumOption(t *testing.T) {
	svc := newTestService(t, WithQuotationMinimum(1))
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	if _, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("IssueRFQ: %v", err)
	}
	if _, _, err := svc.AddQuotation(ctx, c.ID, map[string]any{"supplier": "acme"}, procurement, ""); err != nil {
		t.Fatalf("AddQuotation: %v", err)
	}
	if _, _, err := svc.RecordAbstract(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("RecordAbstract with lowered minimum: %v", err)
	}
}

func TestTransitionRejectedOffGraph(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)

	_, _, err := svc.RecordAward(context.Background(), c.ID, nil, procurement, "")
	wantErrAs[domain.ErrTransitionNotAllowed](t, err)
}

func TestTransitionPermissionDenied(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)

	_, _, err := svc.IssueRFQ(context.Background(), c.ID, nil, budgetActor, "")
	wantErrAs[domain.ErrPermissionDenied](t, err)
}

func TestTransitionUnknownCase(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.IssueRFQ(context.Background(), "missing", nil, procurement, "")
	wantErrAs[domain.ErrNotFound](t, err)
}

func TestIdempotencyReplayRejected(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	if _, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, "tok-1"); err != nil {
		t.Fatalf("IssueRFQ: %v", err)
	}
	_, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, "tok-1")
	wantErrAs[domain.ErrDuplicateRequest](t, err)
}

func TestIdempotencyConsumedOnRejectedAttempt(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	// The transition is off-graph from draft, but the token is still spent.
	_, _, err := svc.RecordAward(ctx, c.ID, nil, procurement, "tok-2")
	wantErrAs[domain.ErrTransitionNotAllowed](t, err)

	_, _, err = svc.IssueRFQ(ctx, c.ID, nil, procurement, "tok-2")
	wantErrAs[domain.ErrDuplicateRequest](t, err)
}

func TestIdempotencyNotConsumedOnPermissionDenial(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	_, _, err := svc.IssueRFQ(ctx, c.ID, nil, budgetActor, "tok-3")
	wantErrAs[domain.ErrPermissionDenied](t, err)

	if _, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, "tok-3"); err != nil {
		t.Fatalf("token should remain unspent after a permission denial: %v", err)
	}
}

func TestIdempotencyWindowExpiry(t *testing.T) {
	current := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return current })
	svc := NewService(store,
		WithClock(ClockFunc(func() time.Time { return current })),
		WithIdempotencyWindow(time.Hour),
	)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	if _, _, err := svc.IssueRFQ(ctx, c.ID, nil, procurement, "tok-4"); err != nil {
		t.Fatalf("IssueRFQ: %v", err)
	}
	_, _, err := svc.AddQuotation(ctx, c.ID, map[string]any{"supplier": "acme"}, procurement, "tok-4")
	wantErrAs[domain.ErrDuplicateRequest](t, err)

	current = current.Add(2 * time.Hour)
	if _, _, err := svc.AddQuotation(ctx, c.ID, map[string]any{"supplier": "acme"}, procurement, "tok-4"); err != nil {
		t.Fatalf("expired token should be reusable: %v", err)
	}
}

func TestExplicitStageEntryWithoutRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bidding := createCase(t, svc, domain.MethodPublicBidding)
	if _, err := svc.Post(ctx, bidding.ID, nil, procurement, ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	opened, err := svc.OpenBidSubmission(ctx, bidding.ID, procurement, "")
	if err != nil {
		t.Fatalf("OpenBidSubmission: %v", err)
	}
	if opened.State != domain.StateBidSubmissionOpening {
		t.Fatalf("state = %s, want bid_submission_opening", opened.State)
	}
	if n := len(svc.StageRecords(ctx, bidding.ID, domain.StageBid)); n != 0 {
		t.Fatalf("bids = %d, want 0 before any submission", n)
	}
	if _, _, err := svc.AddBid(ctx, bidding.ID, map[string]any{"bidder": "acme"}, procurement, ""); err != nil {
		t.Fatalf("AddBid after explicit open: %v", err)
	}

	small := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, small.ID, domain.StateNTPIssued)
	entered, err := svc.RecordDelivery(ctx, small.ID, supply, "")
	if err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if entered.State != domain.StateDelivery {
		t.Fatalf("state = %s, want delivery", entered.State)
	}
	if n := len(svc.StageRecords(ctx, small.ID, domain.StageDelivery)); n != 0 {
		t.Fatalf("delivery records = %d, want 0 until a receipt is logged", n)
	}
	if _, _, err := svc.AddDelivery(ctx, small.ID, map[string]any{"dr_number": "DR-2"}, supply, ""); err != nil {
		t.Fatalf("AddDelivery after explicit entry: %v", err)
	}
}

func TestPublicBiddingFlow(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodPublicBidding)
	ctx := context.Background()

	if _, err := svc.Post(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, _, err := svc.RecordBidBulletin(ctx, c.ID, map[string]any{"number": 1}, procurement, ""); err != nil {
		t.Fatalf("first bulletin: %v", err)
	}
	if _, _, err := svc.RecordBidBulletin(ctx, c.ID, map[string]any{"number": 2}, procurement, ""); err != nil {
		t.Fatalf("second bulletin: %v", err)
	}
	got, err := svc.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.State != domain.StateBidBulletin {
		t.Fatalf("state after bulletins = %s, want bid_bulletin", got.State)
	}
	if n := len(svc.StageRecords(ctx, c.ID, domain.StageBidBulletin)); n != 2 {
		t.Fatalf("bulletins = %d, want 2", n)
	}

	// Pre-bid conference is optional: bulletins feed straight into submission.
	for _, bidder := range []string{"acme", "globex"} {
		if _, _, err := svc.AddBid(ctx, c.ID, map[string]any{"bidder": bidder}, procurement, ""); err != nil {
			t.Fatalf("AddBid(%s): %v", bidder, err)
		}
	}
	if _, _, err := svc.RecordTWGEvaluation(ctx, c.ID, map[string]any{"ranking": []string{"acme", "globex"}}, procurement, ""); err != nil {
		t.Fatalf("RecordTWGEvaluation: %v", err)
	}
	if _, _, err := svc.RecordPostQualification(ctx, c.ID, map[string]any{"passed": false}, procurement, ""); err != nil {
		t.Fatalf("RecordPostQualification: %v", err)
	}

	_, _, err = svc.RecordBACResolution(ctx, c.ID, nil, procurement, "")
	wantErrAs[domain.ErrPrerequisiteNotMet](t, err)

	if _, err := svc.EditStage(ctx, MutationRequest{
		CaseID: c.ID,
		Kind:   domain.StagePostQualification,
		Fields: map[string]any{"passed": true},
		Reason: "post-qualification re-run after curing documents",
		Actor:  procurement,
	}); err != nil {
		t.Fatalf("EditStage: %v", err)
	}
	if _, _, err := svc.RecordBACResolution(ctx, c.ID, map[string]any{"resolution": "BAC-11"}, procurement, ""); err != nil {
		t.Fatalf("RecordBACResolution after pass: %v", err)
	}
	if _, _, err := svc.RecordAward(ctx, c.ID, map[string]any{"awardee": "acme"}, procurement, ""); err != nil {
		t.Fatalf("RecordAward: %v", err)
	}
}

func TestDeletingLastBidRollsBackSubmission(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodPublicBidding)
	ctx := context.Background()

	if _, err := svc.Post(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	// Jump straight to the submission stage, then try to evaluate with no bids.
	if _, _, err := svc.AddBid(ctx, c.ID, map[string]any{"bidder": "acme"}, procurement, ""); err != nil {
		t.Fatalf("AddBid: %v", err)
	}
	records := svc.StageRecords(ctx, c.ID, domain.StageBid)
	if len(records) != 1 {
		t.Fatalf("bids = %d, want 1", len(records))
	}
	if _, err := svc.DeleteStage(ctx, MutationRequest{
		CaseID:   c.ID,
		Kind:     domain.StageBid,
		RecordID: records[0].ID,
		Reason:   "bid withdrawn before opening",
		Actor:    procurement,
	}); err != nil {
		t.Fatalf("DeleteStage: %v", err)
	}
	got, err := svc.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.State != domain.StatePreBidConference {
		t.Fatalf("state after deleting last bid = %s, want pre_bid_conference", got.State)
	}
	_, _, evalErr := svc.RecordTWGEvaluation(ctx, c.ID, nil, procurement, "")
	wantErrAs[domain.ErrTransitionNotAllowed](t, evalErr)
}

func TestInspectionMustPassBeforeAcceptance(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateDelivery)
	ctx := context.Background()

	if _, _, err := svc.RecordInspection(ctx, c.ID, map[string]any{"status": "FAILED"}, supply, ""); err != nil {
		t.Fatalf("RecordInspection: %v", err)
	}
	_, _, err := svc.RecordAcceptance(ctx, c.ID, nil, supply, "")
	wantErrAs[domain.ErrPrerequisiteNotMet](t, err)

	if _, err := svc.EditStage(ctx, MutationRequest{
		CaseID: c.ID,
		Kind:   domain.StageInspectionReport,
		Fields: map[string]any{"status": "PASSED"},
		Reason: "re-inspection after replacement of damaged units",
		Actor:  supply,
	}); err != nil {
		t.Fatalf("EditStage: %v", err)
	}
	if _, _, err := svc.RecordAcceptance(ctx, c.ID, nil, supply, ""); err != nil {
		t.Fatalf("RecordAcceptance after passing inspection: %v", err)
	}
}

func TestInfrastructureBillingInspectionCycle(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodInfrastructure)
	ctx := context.Background()

	if _, err := svc.Post(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, _, err := svc.AddBid(ctx, c.ID, map[string]any{"bidder": "buildco"}, procurement, ""); err != nil {
		t.Fatalf("AddBid: %v", err)
	}
	if _, _, err := svc.RecordTWGEvaluation(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("RecordTWGEvaluation: %v", err)
	}
	if _, _, err := svc.RecordPostQualification(ctx, c.ID, map[string]any{"passed": true}, procurement, ""); err != nil {
		t.Fatalf("RecordPostQualification: %v", err)
	}
	if _, _, err := svc.RecordBACResolution(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("RecordBACResolution: %v", err)
	}
	if _, _, err := svc.RecordAward(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("RecordAward: %v", err)
	}
	if _, _, err := svc.ApprovePurchaseOrder(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("ApprovePurchaseOrder: %v", err)
	}
	if _, _, err := svc.SignContract(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("SignContract: %v", err)
	}
	if _, _, err := svc.IssueNTP(ctx, c.ID, nil, procurement, ""); err != nil {
		t.Fatalf("IssueNTP: %v", err)
	}

	if _, _, err := svc.RecordProgressBilling(ctx, c.ID, map[string]any{"percent": 45}, supply, ""); err != nil {
		t.Fatalf("RecordProgressBilling: %v", err)
	}
	if _, _, err := svc.RecordPMTInspection(ctx, c.ID, map[string]any{"status": "FAILED"}, supply, ""); err != nil {
		t.Fatalf("RecordPMTInspection: %v", err)
	}
	_, _, err := svc.RecordAcceptance(ctx, c.ID, nil, supply, "")
	wantErrAs[domain.ErrPrerequisiteNotMet](t, err)

	// Cycle back through billing and re-inspect.
	if _, _, err := svc.RecordProgressBilling(ctx, c.ID, map[string]any{"percent": 100}, supply, ""); err != nil {
		t.Fatalf("second RecordProgressBilling: %v", err)
	}
	if _, _, err := svc.RecordPMTInspection(ctx, c.ID, map[string]any{"status": "PASSED"}, supply, ""); err != nil {
		t.Fatalf("second RecordPMTInspection: %v", err)
	}
	if _, _, err := svc.RecordAcceptance(ctx, c.ID, nil, supply, ""); err != nil {
		t.Fatalf("RecordAcceptance: %v", err)
	}
	billing := svc.StageRecords(ctx, c.ID, domain.StageProgressBilling)
	if len(billing) != 1 {
		t.Fatalf("progress billing records = %d, want singleton replace", len(billing))
	}
	if got := billing[0].Field("percent"); got != 100 && got != float64(100) {
		t.Fatalf("billing percent = %v, want 100", got)
	}
}

func TestCheckAdviceAttachesAtCheckStage(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateCheck)
	ctx := context.Background()

	record, err := svc.RecordCheckAdvice(ctx, c.ID, map[string]any{"advice_number": "ADA-3"}, cashier)
	if err != nil {
		t.Fatalf("RecordCheckAdvice: %v", err)
	}
	if record.Kind != domain.StageCheckAdvice {
		t.Fatalf("record kind = %s", record.Kind)
	}
	got, err := svc.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.State != domain.StateCheck {
		t.Fatalf("check advice must not change state, got %s", got.State)
	}

	// Re-attaching replaces the singleton.
	if _, err := svc.RecordCheckAdvice(ctx, c.ID, map[string]any{"advice_number": "ADA-4"}, cashier); err != nil {
		t.Fatalf("second RecordCheckAdvice: %v", err)
	}
	if n := len(svc.StageRecords(ctx, c.ID, domain.StageCheckAdvice)); n != 1 {
		t.Fatalf("check advice records = %d, want 1", n)
	}
}

func TestCheckAdviceRejectedBeforeCheckStage(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateDV)

	_, err := svc.RecordCheckAdvice(context.Background(), c.ID, nil, cashier)
	wantErrAs[domain.ErrTransitionNotAllowed](t, err)
}

func TestCloseRequiresCheck(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateDV)

	_, err := svc.CloseCase(context.Background(), c.ID, procurement, "")
	wantErrAs[domain.ErrTransitionNotAllowed](t, err)
}

func TestAuditTrailDescending(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	advanceSmallValue(t, svc, c.ID, domain.StateAbstractOfQuotations)
	ctx := context.Background()

	asc := svc.AuditTrail(ctx, c.ID, false)
	desc := svc.AuditTrail(ctx, c.ID, true)
	if len(asc) == 0 || len(asc) != len(desc) {
		t.Fatalf("trail lengths differ: %d vs %d", len(asc), len(desc))
	}
	for i := range asc {
		if asc[i].ID != desc[len(desc)-1-i].ID {
			t.Fatalf("descending trail is not the reverse of ascending at %d", i)
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	svc := newTestService(t)
	c := createCase(t, svc, domain.MethodSmallValueRFQ)
	ctx := context.Background()

	states, err := svc.AllowedTransitions(ctx, c.ID)
	if err != nil {
		t.Fatalf("AllowedTransitions: %v", err)
	}
	want := map[State]bool{domain.StatePosting: true, domain.StateRFQIssued: true}
	if len(states) != len(want) {
		t.Fatalf("allowed from draft = %v", states)
	}
	for _, s := range states {
		if !want[s] {
			t.Fatalf("unexpected allowed state %s", s)
		}
	}

	if _, err := svc.AllowedTransitions(ctx, "missing"); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestListCasesOrderedByCreation(t *testing.T) {
	current := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return current })
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.CreateCase(ctx, Case{Title: "first", Method: domain.MethodSmallValueRFQ}, procurement)
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	current = current.Add(time.Minute)
	second, err := svc.CreateCase(ctx, Case{Title: "second", Method: domain.MethodPublicBidding}, procurement)
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	cases := svc.ListCases(ctx)
	if len(cases) != 2 || cases[0].ID != first.ID || cases[1].ID != second.ID {
		t.Fatalf("cases out of order: %v", cases)
	}
}
