package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/avigne/Rates-And-Roles/modules/assignment/services"
	"github.com/avigne/Rates-And-Roles/pkg/httperr"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

type AssignmentsController struct {
	TenantID TenantIDGetter
	NowUTC   func() time.Time
	// SubjectKind, when set, is the only subject kind this controller
	// accepts. Each route family mounts its own instance, so a rate
	// endpoint cannot write or read role subjects and vice versa.
	SubjectKind string
	Facade      services.AssignmentsFacade
}

type createAssignmentAPIRequest struct {
	SubjectKind string          `json:"subject_kind"`
	SubjectKey  string          `json:"subject_key"`
	Value       json.RawMessage `json:"value"`
	ValidFrom   string          `json:"valid_from"`
	ValidUntil  string          `json:"valid_until"`
}

type closeAssignmentAPIRequest struct {
	AssignmentID string `json:"assignment_id"`
	CloseDate    string `json:"close_date"`
}

type assignmentIDAPIRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type updateAssignmentAPIRequest struct {
	AssignmentID string          `json:"assignment_id"`
	Value        json.RawMessage `json:"value"`
	ValidFrom    string          `json:"valid_from"`
	ValidUntil   string          `json:"valid_until"`
}

// asOfParam reads as_of from the query, defaulting to the current UTC date.
func (c AssignmentsController) asOfParam(r *http.Request) (string, error) {
	asOf := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if asOf == "" {
		now := time.Now
		if c.NowUTC != nil {
			now = c.NowUTC
		}
		return now().UTC().Format(types.DateLayout), nil
	}
	if !types.ValidDate(asOf) {
		return "", httperr.NewBadRequest("invalid_as_of", "invalid as_of")
	}
	return asOf, nil
}

func (c AssignmentsController) checkSubjectKind(kind string) error {
	if c.SubjectKind != "" && kind != c.SubjectKind {
		return types.NewValidationError(fmt.Sprintf("subject_kind must be %q", c.SubjectKind))
	}
	return nil
}

func (c AssignmentsController) subjectParam(r *http.Request) (types.Subject, error) {
	kind := strings.TrimSpace(r.URL.Query().Get("subject_kind"))
	key := strings.TrimSpace(r.URL.Query().Get("subject_key"))
	if kind == "" || key == "" {
		return types.Subject{}, httperr.NewBadRequest("missing_subject", "subject_kind and subject_key are required")
	}
	if err := c.checkSubjectKind(kind); err != nil {
		return types.Subject{}, err
	}
	return types.Subject{Kind: kind, Key: key}, nil
}

func decodeJSONBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return httperr.NewBadRequest("bad_json", "bad json")
	}
	return nil
}

func requireAssignmentID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", httperr.NewBadRequest("missing_assignment_id", "assignment_id is required")
	}
	return id, nil
}

// HandleAssignmentsAPI serves GET (resolve the current assignment for a
// subject at as_of) and POST (create a new assignment).
func (c AssignmentsController) HandleAssignmentsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	asOf, err := c.asOfParam(r)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}

	switch r.Method {
	case http.MethodGet:
		subject, err := c.subjectParam(r)
		if err != nil {
			writeDomainError(w, r, err, "bad request")
			return
		}

		a, found, err := c.Facade.ResolveCurrent(r.Context(), tenantID, subject, asOf)
		if err != nil {
			writeDomainError(w, r, err, "resolve failed")
			return
		}
		if !found {
			writeError(w, r, http.StatusNotFound, "no_current_assignment", "no assignment is current for this subject")
			return
		}
		writeJSON(w, map[string]any{
			"as_of":      asOf,
			"tenant":     tenantID,
			"assignment": a,
		})

	case http.MethodPost:
		var req createAssignmentAPIRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeDomainError(w, r, err, "bad request")
			return
		}
		req.SubjectKind = strings.TrimSpace(req.SubjectKind)
		req.SubjectKey = strings.TrimSpace(req.SubjectKey)
		req.ValidFrom = strings.TrimSpace(req.ValidFrom)
		req.ValidUntil = strings.TrimSpace(req.ValidUntil)
		if req.SubjectKind == "" || req.SubjectKey == "" {
			writeError(w, r, http.StatusBadRequest, "missing_subject", "subject_kind and subject_key are required")
			return
		}
		if err := c.checkSubjectKind(req.SubjectKind); err != nil {
			writeDomainError(w, r, err, "bad request")
			return
		}
		if req.ValidFrom == "" {
			req.ValidFrom = asOf
		}

		a, err := c.Facade.Create(r.Context(), tenantID, ports.NewAssignment{
			Subject:    types.Subject{Kind: req.SubjectKind, Key: req.SubjectKey},
			Value:      req.Value,
			ValidFrom:  req.ValidFrom,
			ValidUntil: req.ValidUntil,
		})
		if err != nil {
			writeDomainError(w, r, err, "create failed")
			return
		}
		writeJSON(w, a)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (c AssignmentsController) HandleAssignmentsHistoryAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	subject, err := c.subjectParam(r)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}

	assigns, err := c.Facade.History(r.Context(), tenantID, subject)
	if err != nil {
		writeDomainError(w, r, err, "history failed")
		return
	}
	if assigns == nil {
		assigns = make([]types.Assignment, 0)
	}
	writeJSON(w, map[string]any{
		"tenant":      tenantID,
		"subject":     subject,
		"assignments": assigns,
	})
}

func (c AssignmentsController) HandleAssignmentsCurrentAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	asOf, err := c.asOfParam(r)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}

	assigns, err := c.Facade.ListCurrent(r.Context(), tenantID, asOf)
	if err != nil {
		writeDomainError(w, r, err, "list failed")
		return
	}
	if assigns == nil {
		assigns = make([]types.Assignment, 0)
	}
	writeJSON(w, map[string]any{
		"as_of":       asOf,
		"tenant":      tenantID,
		"assignments": assigns,
	})
}

func (c AssignmentsController) HandleAssignmentsCloseAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req closeAssignmentAPIRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	id, err := requireAssignmentID(req.AssignmentID)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	req.CloseDate = strings.TrimSpace(req.CloseDate)
	if req.CloseDate == "" {
		writeError(w, r, http.StatusBadRequest, "missing_close_date", "close_date is required")
		return
	}

	a, err := c.Facade.Close(r.Context(), tenantID, id, req.CloseDate)
	if err != nil {
		writeDomainError(w, r, err, "close failed")
		return
	}
	writeJSON(w, a)
}

func (c AssignmentsController) HandleAssignmentsDeactivateAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req assignmentIDAPIRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	id, err := requireAssignmentID(req.AssignmentID)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}

	a, err := c.Facade.Deactivate(r.Context(), tenantID, id)
	if err != nil {
		writeDomainError(w, r, err, "deactivate failed")
		return
	}
	writeJSON(w, a)
}

func (c AssignmentsController) HandleAssignmentsUpdateAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSONBody(r, &raw); err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	body, _ := json.Marshal(raw)
	var req updateAssignmentAPIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	id, err := requireAssignmentID(req.AssignmentID)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	if _, ok := raw["subject_kind"]; ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "subject is immutable")
		return
	}
	if _, ok := raw["subject_key"]; ok {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "subject is immutable")
		return
	}

	// Field presence decides what the patch touches; a present but empty
	// valid_until clears the end date back to open-ended.
	var patch ports.AssignmentPatch
	if _, ok := raw["value"]; ok {
		patch.Value = req.Value
	}
	if _, ok := raw["valid_from"]; ok {
		from := strings.TrimSpace(req.ValidFrom)
		patch.ValidFrom = &from
	}
	if _, ok := raw["valid_until"]; ok {
		until := strings.TrimSpace(req.ValidUntil)
		patch.ValidUntil = &until
	}

	a, err := c.Facade.Update(r.Context(), tenantID, id, patch)
	if err != nil {
		writeDomainError(w, r, err, "update failed")
		return
	}
	writeJSON(w, a)
}

func (c AssignmentsController) HandleAssignmentsDeleteAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req assignmentIDAPIRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}
	id, err := requireAssignmentID(req.AssignmentID)
	if err != nil {
		writeDomainError(w, r, err, "bad request")
		return
	}

	if err := c.Facade.Delete(r.Context(), tenantID, id); err != nil {
		writeDomainError(w, r, err, "delete failed")
		return
	}
	writeJSON(w, map[string]any{"deleted": id})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case types.IsOverlapError(err):
		conflicting, _ := types.OverlapConflicting(err)
		writeOverlapError(w, r, err.Error(), conflicting)
	case types.IsValidationError(err):
		writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case types.IsNotFoundError(err):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case httperr.IsBadRequest(err):
		br, _ := httperr.AsBadRequest(err)
		writeError(w, r, http.StatusBadRequest, br.Code, br.Reason)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", message)
	}
}
