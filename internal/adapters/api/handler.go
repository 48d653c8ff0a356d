// Package api exposes the lifecycle engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"procurecore/internal/blob"
	"procurecore/internal/core"
	"procurecore/pkg/domain"
)

// Caller identity headers. Authentication happens upstream; the handler
// trusts the resolved identity it is handed.
const (
	HeaderActor          = "X-Actor"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Handler provides HTTP access to procurement cases, stage records, the
// audit trail, and supporting documents.
type Handler struct {
	Service   *core.Service
	Documents blob.Store
}

// NewHandler constructs a case HTTP handler.
func NewHandler(svc *core.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "case service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/cases":
		switch r.Method {
		case http.MethodPost:
			h.handleCreateCase(w, r)
		case http.MethodGet:
			h.handleListCases(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case strings.HasPrefix(path, "/api/v1/cases/"):
		h.handleCase(w, r, strings.TrimPrefix(path, "/api/v1/cases/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleCase(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	caseID := segments[0]
	if caseID == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		c, err := h.Service.GetCase(r.Context(), caseID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
		return
	}

	switch segments[1] {
	case "actions":
		if len(segments) != 3 || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "case action not found")
			return
		}
		h.handleAction(w, r, caseID, segments[2])
	case "stages":
		if len(segments) < 3 {
			http.NotFound(w, r)
			return
		}
		h.handleStage(w, r, caseID, segments[2], segments[3:])
	case "audit":
		if len(segments) != 2 || r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		descending := strings.EqualFold(r.URL.Query().Get("order"), "desc")
		entries := h.Service.AuditTrail(r.Context(), caseID, descending)
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case "transitions":
		if len(segments) != 2 || r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		states, err := h.Service.AllowedTransitions(r.Context(), caseID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transitions": states})
	case "documents":
		h.handleDocuments(w, r, caseID, segments[2:])
	default:
		http.NotFound(w, r)
	}
}

type createCaseRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Office          string  `json:"office"`
	EstimatedBudget float64 `json:"estimated_budget"`
	Method          string  `json:"method"`
}

func (h *Handler) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid case payload")
		return
	}
	c, err := h.Service.CreateCase(r.Context(), domain.Case{
		Title:           req.Title,
		Description:     req.Description,
		Office:          req.Office,
		EstimatedBudget: req.EstimatedBudget,
		Method:          domain.Method(req.Method),
	}, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"case": c})
}

func (h *Handler) handleListCases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cases": h.Service.ListCases(r.Context())})
}

type actionRequest struct {
	Fields map[string]any `json:"fields"`
}

// handleAction dispatches one stage action by name. Action names mirror the
// service operation vocabulary.
func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, caseID, action string) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, "invalid action payload")
		return
	}
	token := r.Header.Get(HeaderIdempotencyKey)
	ctx := r.Context()

	type stageFn func() (domain.Case, domain.StageRecord, error)
	run := func(fn stageFn) {
		c, record, err := fn()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c, "record": record})
	}

	switch action {
	case "post":
		c, err := h.Service.Post(ctx, caseID, req.Fields, actor, token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
	case "issue_rfq":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.IssueRFQ(ctx, caseID, req.Fields, actor, token)
		})
	case "add_quotation":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.AddQuotation(ctx, caseID, req.Fields, actor, token)
		})
	case "record_abstract":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordAbstract(ctx, caseID, req.Fields, actor, token)
		})
	case "record_bid_bulletin":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordBidBulletin(ctx, caseID, req.Fields, actor, token)
		})
	case "record_pre_bid_conference":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordPreBidConference(ctx, caseID, req.Fields, actor, token)
		})
	case "add_bid":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.AddBid(ctx, caseID, req.Fields, actor, token)
		})
	case "open_bid_submission":
		c, err := h.Service.OpenBidSubmission(ctx, caseID, actor, token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
	case "record_twg_evaluation":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordTWGEvaluation(ctx, caseID, req.Fields, actor, token)
		})
	case "record_post_qualification":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordPostQualification(ctx, caseID, req.Fields, actor, token)
		})
	case "record_bac_resolution":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordBACResolution(ctx, caseID, req.Fields, actor, token)
		})
	case "record_award":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordAward(ctx, caseID, req.Fields, actor, token)
		})
	case "approve_purchase_order":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.ApprovePurchaseOrder(ctx, caseID, req.Fields, actor, token)
		})
	case "sign_contract":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.SignContract(ctx, caseID, req.Fields, actor, token)
		})
	case "issue_ntp":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.IssueNTP(ctx, caseID, req.Fields, actor, token)
		})
	case "record_progress_billing":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordProgressBilling(ctx, caseID, req.Fields, actor, token)
		})
	case "record_pmt_inspection":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordPMTInspection(ctx, caseID, req.Fields, actor, token)
		})
	case "record_delivery":
		c, err := h.Service.RecordDelivery(ctx, caseID, actor, token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
	case "add_delivery":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.AddDelivery(ctx, caseID, req.Fields, actor, token)
		})
	case "record_inspection":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordInspection(ctx, caseID, req.Fields, actor, token)
		})
	case "record_acceptance":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.RecordAcceptance(ctx, caseID, req.Fields, actor, token)
		})
	case "prepare_ors":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.PrepareORS(ctx, caseID, req.Fields, actor, token)
		})
	case "prepare_dv":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.PrepareDV(ctx, caseID, req.Fields, actor, token)
		})
	case "issue_check":
		run(func() (domain.Case, domain.StageRecord, error) {
			return h.Service.IssueCheck(ctx, caseID, req.Fields, actor, token)
		})
	case "record_check_advice":
		record, err := h.Service.RecordCheckAdvice(ctx, caseID, req.Fields, actor)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"record": record})
	case "close":
		c, err := h.Service.CloseCase(ctx, caseID, actor, token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
	default:
		writeError(w, http.StatusNotFound, "unknown case action")
	}
}

type mutationBody struct {
	Fields map[string]any `json:"fields"`
	Reason string         `json:"reason"`
}

func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request, caseID, kind string, rest []string) {
	stageKind := domain.StageKind(kind)
	recordID := ""
	if len(rest) == 1 {
		recordID = rest[0]
	} else if len(rest) > 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if recordID != "" {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		records := h.Service.StageRecords(r.Context(), caseID, stageKind)
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
	case http.MethodPut, http.MethodDelete:
		actor, ok := callerIdentity(w, r)
		if !ok {
			return
		}
		var body mutationBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid mutation payload")
			return
		}
		req := core.MutationRequest{
			CaseID:   caseID,
			Kind:     stageKind,
			RecordID: recordID,
			Fields:   body.Fields,
			Reason:   body.Reason,
			Actor:    actor,
		}
		if r.Method == http.MethodPut {
			record, err := h.Service.EditStage(r.Context(), req)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"record": record})
			return
		}
		c, err := h.Service.DeleteStage(r.Context(), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": c})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDocuments stores and serves supporting documents under
// cases/<case-id>/<stage-kind>/<filename>.
func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request, caseID string, rest []string) {
	if h.Documents == nil {
		http.NotFound(w, r)
		return
	}
	if _, err := h.Service.GetCase(r.Context(), caseID); err != nil {
		writeDomainError(w, err)
		return
	}

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		infos, err := h.Documents.List(r.Context(), "cases/"+caseID+"/")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": infos})
		return
	}
	if len(rest) != 2 {
		http.NotFound(w, r)
		return
	}
	key := "cases/" + caseID + "/" + rest[0] + "/" + rest[1]

	switch r.Method {
	case http.MethodPut:
		if _, ok := callerIdentity(w, r); !ok {
			return
		}
		info, err := h.Documents.Put(r.Context(), key, r.Body, blob.PutOptions{ContentType: r.Header.Get("Content-Type")})
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": info})
	case http.MethodGet:
		info, body, err := h.Documents.Get(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		defer func() { _ = body.Close() }()
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
	case http.MethodDelete:
		if _, ok := callerIdentity(w, r); !ok {
			return
		}
		existed, err := h.Documents.Delete(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !existed {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": key})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// callerIdentity resolves the actor from request headers, rejecting requests
// without one.
func callerIdentity(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActor)),
		Role: domain.Role(strings.TrimSpace(r.Header.Get(HeaderActorRole))),
	}
	if actor.ID == "" || actor.Role == "" {
		writeError(w, http.StatusUnauthorized, "caller identity headers required")
		return domain.Actor{}, false
	}
	return actor, true
}

// writeDomainError maps typed engine rejections onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound    domain.ErrNotFound
		notAllowed  domain.ErrTransitionNotAllowed
		prereq      domain.ErrPrerequisiteNotMet
		permission  domain.ErrPermissionDenied
		downstream  domain.ErrDownstreamBlocked
		duplicate   domain.ErrDuplicateRequest
		validation  domain.ErrValidation
		ruleBlocked domain.RuleViolationError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notAllowed), errors.As(err, &prereq), errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &permission), errors.As(err, &downstream):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &duplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ruleBlocked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
