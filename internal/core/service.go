package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"procurecore/pkg/domain"
)

// Service exposes the lifecycle engine as one operation per stage action.
// Every state-changing operation runs inside a single store transaction with
// validation re-run against the transactional snapshot.
type Service struct {
	store             PersistentStore
	policy            *TransitionPolicy
	validator         *PrerequisiteValidator
	table             *StageTable
	resolver          *RollbackResolver
	perms             Permissions
	executor          *TransitionExecutor
	guard             *MutationGuard
	logger            Logger
	metrics           MetricsRecorder
	tracer            Tracer
	notifier          Notifier
	clock             Clock
	quotationMinimum  int
	idempotencyWindow time.Duration
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithLogger installs a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs an operation tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier installs the override alert sink.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source for deterministic tests.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithQuotationMinimum overrides the quotation floor enforced before the
// abstract of quotations.
func WithQuotationMinimum(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.quotationMinimum = n
		}
	}
}

// WithIdempotencyWindow overrides the token validity window.
func WithIdempotencyWindow(window time.Duration) ServiceOption {
	return func(s *Service) {
		if window > 0 {
			s.idempotencyWindow = window
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:             store,
		policy:            NewTransitionPolicy(),
		table:             NewStageTable(),
		resolver:          NewRollbackResolver(),
		perms:             NewPermissions(),
		logger:            noopLogger{},
		metrics:           noopMetricsRecorder{},
		tracer:            noopTracer{},
		notifier:          noopNotifier{},
		clock:             ClockFunc(func() time.Time { return time.Now().UTC() }),
		quotationMinimum:  DefaultQuotationMinimum,
		idempotencyWindow: DefaultIdempotencyWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewPrerequisiteValidator(s.quotationMinimum)
	s.executor = NewTransitionExecutor(s.store, s.policy, s.validator, s.perms, s.clock, s.idempotencyWindow)
	s.guard = NewMutationGuard(s.store, s.table, s.resolver, s.perms, s.notifier)
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Policy returns the transition policy the service enforces.
func (s *Service) Policy() *TransitionPolicy { return s.policy }

func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Debug("operation rejected", "operation", operation, "error", err.Error())
	}
	return err
}

// CreateCase opens a new procurement case in draft.
func (s *Service) CreateCase(ctx context.Context, c Case, actor Actor) (Case, error) {
	var created Case
	err := s.instrument(ctx, "create_case", func(ctx context.Context) error {
		if !actor.Role.Valid() {
			return domain.ErrValidation{Field: "actor_role", Reason: "unknown role"}
		}
		if strings.TrimSpace(c.Title) == "" {
			return domain.ErrValidation{Field: "title", Reason: "a title is required"}
		}
		if !c.Method.Valid() {
			return domain.ErrValidation{Field: "method", Reason: "unknown procurement method"}
		}
		c.State = domain.StateDraft
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateCase(c)
			return err
		})
		return err
	})
	return created, err
}

// transition funnels a stage action through the executor.
func (s *Service) transition(ctx context.Context, operation string, caseID string, target State, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	var (
		updated Case
		record  StageRecord
	)
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		var err error
		updated, record, err = s.executor.Execute(ctx, TransitionRequest{
			CaseID:           caseID,
			Target:           target,
			Operation:        operation,
			Payload:          payload,
			Actor:            actor,
			IdempotencyToken: token,
		})
		return err
	})
	return updated, record, err
}

// collectionAdd appends to a collection stage, entering the stage first when
// the case still sits in the preceding state.
func (s *Service) collectionAdd(ctx context.Context, operation string, caseID string, kind StageKind, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	stageState, _ := StateOfKind(kind)
	current, ok := s.store.GetCase(caseID)
	if !ok {
		err := s.instrument(ctx, operation, func(context.Context) error {
			return domain.ErrNotFound{Entity: EntityCase, ID: caseID}
		})
		return Case{}, StageRecord{}, err
	}
	if current.State != stageState {
		return s.transition(ctx, operation, caseID, stageState, payload, actor, token)
	}
	var record StageRecord
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		var err error
		record, err = s.executor.Append(ctx, AppendRequest{
			CaseID:    caseID,
			Kind:      kind,
			Operation: operation,
			Payload:   payload,
			Actor:     actor,
		})
		return err
	})
	return current, record, err
}

// Post publishes the procurement opportunity.
func (s *Service) Post(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, error) {
	c, _, err := s.transition(ctx, "post_opportunity", caseID, domain.StatePosting, payload, actor, token)
	return c, err
}

// IssueRFQ issues the request for quotation (small-value procurement).
func (s *Service) IssueRFQ(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "issue_rfq", caseID, domain.StateRFQIssued, payload, actor, token)
}

// AddQuotation records a supplier quotation, opening the collection stage on
// the first one.
func (s *Service) AddQuotation(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.collectionAdd(ctx, "add_quotation", caseID, domain.StageQuotation, payload, actor, token)
}

// RecordAbstract prepares the abstract of quotations.
func (s *Service) RecordAbstract(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_abstract", caseID, domain.StateAbstractOfQuotations, payload, actor, token)
}

// RecordBidBulletin publishes a bid bulletin, entering the bulletin stage on
// the first one.
func (s *Service) RecordBidBulletin(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.collectionAdd(ctx, "record_bid_bulletin", caseID, domain.StageBidBulletin, payload, actor, token)
}

// RecordPreBidConference records the pre-bid conference minutes.
func (s *Service) RecordPreBidConference(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_pre_bid_conference", caseID, domain.StatePreBidConference, payload, actor, token)
}

// AddBid records a submitted bid, opening the submission stage on the first
// one.
func (s *Service) AddBid(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.collectionAdd(ctx, "add_bid", caseID, domain.StageBid, payload, actor, token)
}

// OpenBidSubmission opens the bid submission stage before any bid arrives.
func (s *Service) OpenBidSubmission(ctx context.Context, caseID string, actor Actor, token string) (Case, error) {
	c, _, err := s.transition(ctx, "open_bid_submission", caseID, domain.StateBidSubmissionOpening, nil, actor, token)
	return c, err
}

// RecordTWGEvaluation records the technical working group evaluation.
func (s *Service) RecordTWGEvaluation(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_twg_evaluation", caseID, domain.StateTWGEvaluation, payload, actor, token)
}

// RecordPostQualification records the post-qualification outcome. The payload
// field "passed" gates the BAC resolution and award downstream.
func (s *Service) RecordPostQualification(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_post_qualification", caseID, domain.StatePostQualification, payload, actor, token)
}

// RecordBACResolution records the BAC resolution.
func (s *Service) RecordBACResolution(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_bac_resolution", caseID, domain.StateBACResolution, payload, actor, token)
}

// RecordAward records the notice of award.
func (s *Service) RecordAward(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_award", caseID, domain.StateAwarded, payload, actor, token)
}

// ApprovePurchaseOrder approves the purchase order.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "approve_purchase_order", caseID, domain.StatePOApproved, payload, actor, token)
}

// SignContract records the signed contract.
func (s *Service) SignContract(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "sign_contract", caseID, domain.StateContractSigned, payload, actor, token)
}

// IssueNTP issues the notice to proceed.
func (s *Service) IssueNTP(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "issue_ntp", caseID, domain.StateNTPIssued, payload, actor, token)
}

// RecordProgressBilling records a progress billing (infrastructure).
func (s *Service) RecordProgressBilling(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_progress_billing", caseID, domain.StateProgressBilling, payload, actor, token)
}

// RecordPMTInspection records the project monitoring team inspection report.
func (s *Service) RecordPMTInspection(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_pmt_inspection", caseID, domain.StatePMTInspection, payload, actor, token)
}

// RecordDelivery moves the case into the delivery stage without logging a
// delivery receipt yet.
func (s *Service) RecordDelivery(ctx context.Context, caseID string, actor Actor, token string) (Case, error) {
	c, _, err := s.transition(ctx, "record_delivery", caseID, domain.StateDelivery, nil, actor, token)
	return c, err
}

// AddDelivery records a delivery, entering the delivery stage on the first
// one.
func (s *Service) AddDelivery(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.collectionAdd(ctx, "add_delivery", caseID, domain.StageDelivery, payload, actor, token)
}

// RecordInspection records the inspection report. The payload field "status"
// must be PASSED before acceptance.
func (s *Service) RecordInspection(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_inspection", caseID, domain.StateInspection, payload, actor, token)
}

// RecordAcceptance records the certificate of acceptance.
func (s *Service) RecordAcceptance(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "record_acceptance", caseID, domain.StateAcceptance, payload, actor, token)
}

// PrepareORS prepares the obligation request and status.
func (s *Service) PrepareORS(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "prepare_ors", caseID, domain.StateORS, payload, actor, token)
}

// PrepareDV prepares the disbursement voucher.
func (s *Service) PrepareDV(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "prepare_dv", caseID, domain.StateDV, payload, actor, token)
}

// IssueCheck issues the check.
func (s *Service) IssueCheck(ctx context.Context, caseID string, payload map[string]any, actor Actor, token string) (Case, StageRecord, error) {
	return s.transition(ctx, "issue_check", caseID, domain.StateCheck, payload, actor, token)
}

// RecordCheckAdvice attaches the check advice at the check stage.
func (s *Service) RecordCheckAdvice(ctx context.Context, caseID string, payload map[string]any, actor Actor) (StageRecord, error) {
	var record StageRecord
	err := s.instrument(ctx, "record_check_advice", func(ctx context.Context) error {
		var err error
		record, err = s.executor.Attach(ctx, AppendRequest{
			CaseID:    caseID,
			Kind:      domain.StageCheckAdvice,
			Operation: "record_check_advice",
			Payload:   payload,
			Actor:     actor,
		})
		return err
	})
	return record, err
}

// CloseCase closes the case after the check is on record.
func (s *Service) CloseCase(ctx context.Context, caseID string, actor Actor, token string) (Case, error) {
	c, _, err := s.transition(ctx, "close_case", caseID, domain.StateClosed, nil, actor, token)
	return c, err
}

// EditStage rewrites a stage record under the mutation guard.
func (s *Service) EditStage(ctx context.Context, req MutationRequest) (StageRecord, error) {
	var record StageRecord
	err := s.instrument(ctx, "edit_stage", func(ctx context.Context) error {
		var err error
		record, err = s.guard.Edit(ctx, req)
		return err
	})
	return record, err
}

// DeleteStage removes a stage record under the mutation guard, rolling the
// case state back when the stage's last record goes.
func (s *Service) DeleteStage(ctx context.Context, req MutationRequest) (Case, error) {
	var c Case
	err := s.instrument(ctx, "delete_stage", func(ctx context.Context) error {
		var err error
		c, err = s.guard.Delete(ctx, req)
		return err
	})
	return c, err
}

// ValidateMutation reports whether role could edit or delete records of kind
// on the case, without performing the mutation.
func (s *Service) ValidateMutation(ctx context.Context, caseID string, kind StageKind, role Role, action string) (Decision, error) {
	var decision Decision
	err := s.store.View(ctx, func(view TransactionView) error {
		c, ok := view.FindCase(caseID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCase, ID: caseID}
		}
		var err error
		if action == "delete" {
			decision, err = s.guard.ValidateDelete(view, c, kind, role)
		} else {
			decision, err = s.guard.ValidateEdit(view, c, kind, role)
		}
		return err
	})
	return decision, err
}

// GetCase fetches one case.
func (s *Service) GetCase(ctx context.Context, id string) (Case, error) {
	c, ok := s.store.GetCase(id)
	if !ok {
		return Case{}, domain.ErrNotFound{Entity: EntityCase, ID: id}
	}
	return c, nil
}

// ListCases returns all cases ordered by creation time.
func (s *Service) ListCases(ctx context.Context) []Case {
	cases := s.store.ListCases()
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].ID < cases[j].ID
		}
		return cases[i].CreatedAt.Before(cases[j].CreatedAt)
	})
	return cases
}

// StageRecords returns the case's stage records of one kind.
func (s *Service) StageRecords(ctx context.Context, caseID string, kind StageKind) []StageRecord {
	return s.store.StageRecordsOfKind(caseID, kind)
}

// AuditTrail returns the case's audit entries in creation order, or latest
// first when descending is set. The trail reconstructs lifecycle history.
func (s *Service) AuditTrail(ctx context.Context, caseID string, descending bool) []AuditEntry {
	entries := s.store.ListAuditEntries(caseID)
	if descending {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries
}

// AllowedTransitions reports the policy edges from the case's current state.
func (s *Service) AllowedTransitions(ctx context.Context, caseID string) ([]State, error) {
	c, ok := s.store.GetCase(caseID)
	if !ok {
		return nil, domain.ErrNotFound{Entity: EntityCase, ID: caseID}
	}
	return s.policy.Allowed(c.Method, c.State), nil
}
