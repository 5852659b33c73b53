package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appextraction "github.com/prescripto/prescripto/internal/application/extraction"
	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/extraction/parser"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// maxDocumentBytes caps request bodies; OCR text beyond this is noise.
const maxDocumentBytes = 1 << 20

// ExtractionService is the application surface the handler depends on.
type ExtractionService interface {
	Extract(ctx context.Context, req appextraction.Request) (*appextraction.Result, error)
	Preview(ctx context.Context, req appextraction.Request) (*appextraction.Result, error)
	GetPrescription(ctx context.Context, id string) (*prescription.Prescription, error)
	ListPrescriptions(ctx context.Context, limit int) ([]*prescription.Prescription, error)
	GetSchedule(ctx context.Context, prescriptionID string) ([]*reminder.Event, error)
}

// ExtractionHandler serves the extraction and schedule endpoints.
type ExtractionHandler struct {
	service ExtractionService
	logger  logging.Logger
}

// NewExtractionHandler constructs the handler.
func NewExtractionHandler(service ExtractionService, log logging.Logger) *ExtractionHandler {
	return &ExtractionHandler{service: service, logger: log}
}

// extractRequest is the POST /extractions body. Callers send either raw text
// or region-tagged fragments from an upstream detector.
type extractRequest struct {
	Text      string            `json:"text,omitempty"`
	Fragments []parser.Fragment `json:"fragments,omitempty"`
	StartDate string            `json:"start_date,omitempty"` // YYYY-MM-DD
	DryRun    bool              `json:"dry_run,omitempty"`
}

func (req extractRequest) toServiceRequest() (appextraction.Request, error) {
	out := appextraction.Request{Text: req.Text, Fragments: req.Fragments}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return out, errors.New(errors.CodeInvalidStartDate, "start_date must be YYYY-MM-DD").WithCause(err)
		}
		out.StartDate = start
	}
	return out, nil
}

// Extract handles POST /api/v1/extractions: run the pipeline on OCR text and
// return the prescription with its reminder schedule. With dry_run set
// nothing is persisted.
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeAppError(w, errors.InvalidParam("request body must be valid JSON").WithCause(err))
		return
	}

	svcReq, err := req.toServiceRequest()
	if err != nil {
		writeAppError(w, err)
		return
	}

	run := h.service.Extract
	if req.DryRun {
		run = h.service.Preview
	}
	res, err := run(r.Context(), svcReq)
	if err != nil {
		h.logger.Warn("extraction request failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	status := http.StatusCreated
	if req.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// GetPrescription handles GET /api/v1/prescriptions/{id}.
func (h *ExtractionHandler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPrescription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPrescriptions handles GET /api/v1/prescriptions.
func (h *ExtractionHandler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPrescriptions(r.Context(), parseLimit(r, 20, 100))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if list == nil {
		list = []*prescription.Prescription{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prescriptions": list})
}

// GetSchedule handles GET /api/v1/prescriptions/{id}/schedule.
func (h *ExtractionHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if events == nil {
		events = []*reminder.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
