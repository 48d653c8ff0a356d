package core

import (
	"fmt"

	"procurecore/pkg/domain"
)

// DefaultQuotationMinimum is the policy floor on collected quotations before
// an abstract of quotations may be prepared.
const DefaultQuotationMinimum = 3

// PrerequisiteValidator guards each transition on the upstream records the
// target stage requires. All checks are read-only against the transactional
// snapshot, so they run inside the same transaction as the eventual write.
type PrerequisiteValidator struct {
	quotationMinimum int
}

// NewPrerequisiteValidator constructs a validator with the given quotation
// minimum; values below one fall back to the default.
func NewPrerequisiteValidator(quotationMinimum int) *PrerequisiteValidator {
	if quotationMinimum < 1 {
		quotationMinimum = DefaultQuotationMinimum
	}
	return &PrerequisiteValidator{quotationMinimum: quotationMinimum}
}

// QuotationMinimum returns the configured quotation floor.
func (v *PrerequisiteValidator) QuotationMinimum() int {
	return v.quotationMinimum
}

// Check validates that every prerequisite for moving c to target holds in the
// snapshot. Failures are ErrPrerequisiteNotMet with the unmet condition.
func (v *PrerequisiteValidator) Check(view TransactionView, c Case, target State) error {
	unmet := func(reason string) error {
		return domain.ErrPrerequisiteNotMet{Target: target, Reason: reason}
	}
	has := func(kind StageKind) bool {
		return len(view.StageRecordsOfKind(c.ID, kind)) > 0
	}

	switch target {
	case domain.StateDraft, domain.StatePosting, domain.StateRFQIssued,
		domain.StateBidBulletin, domain.StatePreBidConference, domain.StateBidSubmissionOpening:
		return nil

	case domain.StateQuotationCollection:
		if !has(domain.StageRFQ) {
			return unmet("no request for quotation has been issued")
		}

	case domain.StateAbstractOfQuotations:
		count := len(view.StageRecordsOfKind(c.ID, domain.StageQuotation))
		if count < v.quotationMinimum {
			return unmet(fmt.Sprintf("need at least %d quotations, have %d", v.quotationMinimum, count))
		}

	case domain.StateTWGEvaluation:
		if len(view.StageRecordsOfKind(c.ID, domain.StageBid)) == 0 {
			return unmet("no bids have been submitted")
		}

	case domain.StatePostQualification:
		if !has(domain.StageTWGEvaluation) {
			return unmet("no TWG evaluation on record")
		}

	case domain.StateBACResolution:
		if c.Method == domain.MethodSmallValueRFQ {
			if !has(domain.StageAbstractOfQuotations) {
				return unmet("abstract of quotations not yet prepared")
			}
		} else if !v.postQualificationPassed(view, c.ID) {
			return unmet("no passed post-qualification on record")
		}

	case domain.StateAwarded:
		if !has(domain.StageBACResolution) {
			return unmet("no BAC resolution on record")
		}
		if c.Method == domain.MethodPublicBidding && !v.postQualificationPassed(view, c.ID) {
			return unmet("no passed post-qualification on record")
		}

	case domain.StatePOApproved:
		if !has(domain.StageAward) {
			return unmet("no award on record")
		}

	case domain.StateContractSigned:
		if !has(domain.StageAward) {
			return unmet("no award on record")
		}
		if !has(domain.StagePurchaseOrder) {
			return unmet("no approved purchase order on record")
		}

	case domain.StateNTPIssued:
		if !has(domain.StageContract) {
			return unmet("no signed contract on record")
		}

	case domain.StateDelivery:
		if !has(domain.StageNoticeToProceed) {
			return unmet("no notice to proceed on record")
		}

	case domain.StateInspection:
		if len(view.StageRecordsOfKind(c.ID, domain.StageDelivery)) == 0 {
			return unmet("no delivery recorded")
		}

	case domain.StateAcceptance:
		if c.Method == domain.MethodInfrastructure {
			if !v.inspectionPassed(view, c.ID, domain.StagePMTInspectionReport) {
				return unmet("no passed PMT inspection report on record")
			}
		} else if !v.inspectionPassed(view, c.ID, domain.StageInspectionReport) {
			return unmet("no passed inspection report on record")
		}

	case domain.StateProgressBilling:
		if !has(domain.StageNoticeToProceed) {
			return unmet("no notice to proceed on record")
		}

	case domain.StatePMTInspection:
		if !has(domain.StageProgressBilling) {
			return unmet("no progress billing on record")
		}

	case domain.StateORS:
		if !has(domain.StageAcceptance) {
			return unmet("no acceptance on record")
		}

	case domain.StateDV:
		if !has(domain.StageORS) {
			return unmet("no obligation request (ORS) on record")
		}

	case domain.StateCheck:
		if !has(domain.StageDV) {
			return unmet("no disbursement voucher on record")
		}

	case domain.StateClosed:
		if !has(domain.StageCheck) {
			return unmet("no check on record")
		}
	}
	return nil
}

func (v *PrerequisiteValidator) postQualificationPassed(view TransactionView, caseID string) bool {
	for _, rec := range view.StageRecordsOfKind(caseID, domain.StagePostQualification) {
		if rec.BoolField("passed") {
			return true
		}
	}
	return false
}

func (v *PrerequisiteValidator) inspectionPassed(view TransactionView, caseID string, kind StageKind) bool {
	for _, rec := range view.StageRecordsOfKind(caseID, kind) {
		if rec.StringField("status") == string(domain.InspectionPassed) {
			return true
		}
	}
	return false
}
