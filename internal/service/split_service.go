package service

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/export"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// SplitRequest is the body of POST /splits.
type SplitRequest struct {
	Receipt      *models.Receipt          `json:"receipt"`
	People       []models.Person          `json:"people"`
	Attributions []models.ItemAttribution `json:"attributions"`
	PayerID      string                   `json:"payerId,omitempty"`
}

// SplitResponse carries each person's share and, when a payer is named,
// what everyone else owes them.
type SplitResponse struct {
	Splits      []models.PersonSplit `json:"splits"`
	Settlements []models.Transfer    `json:"settlements"`
}

// SplitService computes splits for posted receipts and stored sessions.
type SplitService struct {
	store  storage.SessionStore
	logger *slog.Logger
}

// NewSplitService creates a new SplitService with the given storage backend.
func NewSplitService(store storage.SessionStore, logger *slog.Logger) *SplitService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SplitService{store: store, logger: logger}
}

func (s *SplitService) RegisterRoutes(r chi.Router) {
	r.Post("/splits", s.CalculateSplit)
	r.Get("/sessions/{id}/splits", s.GetSessionSplits)
	r.Get("/sessions/{id}/export", s.ExportSession)
}

func (s *SplitService) log(r *http.Request) *slog.Logger {
	return s.logger.With("request_id", chimw.GetReqID(r.Context()))
}

// CalculateSplit computes splits for a receipt without storing anything.
func (s *SplitService) CalculateSplit(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.log(r).Warn("CalculateSplit: invalid body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Receipt == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: receipt")
		return
	}
	if err := validatePeople(req.People); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateAttributions(req.Attributions, len(req.Receipt.Items)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validatePayerID(req.PayerID, req.People); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := buildSplitResponse(*req.Receipt, req.People, req.Attributions, req.PayerID)
	s.log(r).Debug("Split calculated", "people", len(req.People), "total", calculator.Sum(resp.Splits))
	writeJSON(w, http.StatusOK, resp)
}

// GetSessionSplits computes splits from a stored session.
func (s *SplitService) GetSessionSplits(w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(w, r, s.store, s.log(r))
	if !ok {
		return
	}

	payerID := r.URL.Query().Get("payerId")
	if err := validatePayerID(payerID, session.People); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, buildSplitResponse(session.Receipt, session.People, session.Attributions, payerID))
}

// ExportSession renders a stored session's items and splits as a workbook.
func (s *SplitService) ExportSession(w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(w, r, s.store, s.log(r))
	if !ok {
		return
	}

	splits := calculator.CalculateSplits(session.Receipt, session.People, session.Attributions)
	var buf bytes.Buffer
	if err := export.WriteSplits(&buf, session.Receipt, splits); err != nil {
		s.log(r).Error("ExportSession: failed to build workbook", "session_id", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to export session")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.xlsx"`, session.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log(r).Warn("ExportSession: failed to write workbook", "session_id", session.ID, "error", err)
	}
}

func buildSplitResponse(receipt models.Receipt, people []models.Person, attributions []models.ItemAttribution, payerID string) SplitResponse {
	splits := calculator.CalculateSplits(receipt, people, attributions)
	settlements := []models.Transfer{}
	if payerID != "" {
		if t := calculator.Settle(splits, payerID); t != nil {
			settlements = t
		}
	}
	return SplitResponse{Splits: splits, Settlements: settlements}
}
