package service

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/parser"
	"github.com/mmynk/receiptsplit/internal/validation"
)

// DefaultMaxUploadBytes caps receipt image uploads.
const DefaultMaxUploadBytes = 10 << 20

// ParseRequest is the body of POST /receipts/parse.
type ParseRequest struct {
	Text string `json:"text"`

	// Confidence is the OCR confidence for Text, if known.
	Confidence *float64 `json:"confidence,omitempty"`
}

type ParseResponse struct {
	Receipt       models.Receipt           `json:"receipt"`
	Issues        []models.ValidationIssue `json:"issues"`
	Confidence    *float64                 `json:"confidence,omitempty"`
	LowConfidence bool                     `json:"lowConfidence"`
}

type ValidateRequest struct {
	Receipt *models.Receipt `json:"receipt"`
}

type ValidateResponse struct {
	Issues   []models.ValidationIssue `json:"issues"`
	Blocking bool                     `json:"blocking"`
}

// ReceiptService parses, validates and scans receipts.
type ReceiptService struct {
	recognizer     ocr.Recognizer
	metrics        *metrics.Metrics
	maxUploadBytes int64
	logger         *slog.Logger
}

// ReceiptOption configures a ReceiptService.
type ReceiptOption func(*ReceiptService)

// WithRecognizer enables POST /receipts/scan.
func WithRecognizer(r ocr.Recognizer) ReceiptOption {
	return func(s *ReceiptService) { s.recognizer = r }
}

func WithReceiptMetrics(m *metrics.Metrics) ReceiptOption {
	return func(s *ReceiptService) { s.metrics = m }
}

func WithMaxUploadBytes(n int64) ReceiptOption {
	return func(s *ReceiptService) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func WithReceiptLogger(logger *slog.Logger) ReceiptOption {
	return func(s *ReceiptService) { s.logger = logger }
}

func NewReceiptService(opts ...ReceiptOption) *ReceiptService {
	s := &ReceiptService{
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReceiptService) RegisterRoutes(r chi.Router) {
	r.Post("/receipts/parse", s.ParseReceipt)
	r.Post("/receipts/validate", s.ValidateReceipt)
	r.Post("/receipts/scan", s.ScanReceipt)
}

func (s *ReceiptService) log(r *http.Request) *slog.Logger {
	return s.logger.With("request_id", chimw.GetReqID(r.Context()))
}

// ParseReceipt parses OCR text into a receipt and validates it.
func (s *ReceiptService) ParseReceipt(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.log(r).Warn("ParseReceipt: invalid body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt := parser.Parse(req.Text)
	issues := validation.Validate(receipt)
	s.metrics.ReceiptParsed(issueTypes(issues))

	resp := ParseResponse{Receipt: receipt, Issues: issues, Confidence: req.Confidence}
	if req.Confidence != nil {
		resp.LowConfidence = ocr.LowConfidence(*req.Confidence)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ValidateReceipt re-validates a receipt the user has edited.
func (s *ReceiptService) ValidateReceipt(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Receipt == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: receipt")
		return
	}

	issues := validation.Validate(*req.Receipt)
	s.metrics.IssuesFound(issueTypes(issues))
	writeJSON(w, http.StatusOK, ValidateResponse{
		Issues:   issues,
		Blocking: validation.HasBlockingIssues(issues),
	})
}

// ScanReceipt runs an uploaded image through OCR, then parses and
// validates the text.
func (s *ReceiptService) ScanReceipt(w http.ResponseWriter, r *http.Request) {
	if s.recognizer == nil {
		writeError(w, http.StatusServiceUnavailable, "Receipt scanning is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		s.log(r).Warn("ScanReceipt: missing image", "error", err)
		writeError(w, http.StatusBadRequest, "Missing image")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	result, err := ocr.Scan(r.Context(), s.recognizer, image)
	if errors.Is(err, ocr.ErrEmptyImage) {
		writeError(w, http.StatusBadRequest, "Missing image")
		return
	}
	if err != nil {
		s.log(r).Error("ScanReceipt: recognition failed", "bytes", len(image), "error", err)
		writeError(w, http.StatusBadGateway, "Failed to process image")
		return
	}

	s.metrics.ReceiptParsed(issueTypes(result.Issues))
	s.log(r).Info("Receipt scanned",
		"items", len(result.Receipt.Items),
		"issues", len(result.Issues),
		"confidence", result.Confidence,
	)
	writeJSON(w, http.StatusOK, result)
}

func issueTypes(issues []models.ValidationIssue) []string {
	types := make([]string, len(issues))
	for i, issue := range issues {
		types[i] = string(issue.Type)
	}
	return types
}
