// Package ocr connects an optical character recognition engine to the
// receipt parser. The engine itself is an external collaborator behind the
// Recognizer interface.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/parser"
	"github.com/mmynk/receiptsplit/internal/validation"
)

// LowConfidenceThreshold is the confidence below which recognized text
// deserves extra scrutiny during review.
const LowConfidenceThreshold = 60

var ErrEmptyImage = errors.New("empty image")

// Result is raw recognizer output.
type Result struct {
	Text string `json:"text"`

	// Confidence is a percentage in [0, 100].
	Confidence float64 `json:"confidence"`
}

// Recognizer extracts text from a receipt image.
type Recognizer interface {
	ProcessImage(ctx context.Context, image []byte) (Result, error)
}

// ScanResult is recognized text together with its parsed and validated form.
type ScanResult struct {
	Text       string                   `json:"text"`
	Confidence float64                  `json:"confidence"`
	Receipt    models.Receipt           `json:"receipt"`
	Issues     []models.ValidationIssue `json:"issues"`
}

// Scan recognizes an image, parses the text and validates the result.
func Scan(ctx context.Context, r Recognizer, image []byte) (*ScanResult, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	result, err := r.ProcessImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to process receipt image: %w", err)
	}

	receipt := parser.Parse(result.Text)
	return &ScanResult{
		Text:       result.Text,
		Confidence: result.Confidence,
		Receipt:    receipt,
		Issues:     validation.Validate(receipt),
	}, nil
}

// LowConfidence reports whether a confidence percentage is below threshold.
func LowConfidence(confidence float64) bool {
	return confidence < LowConfidenceThreshold
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
