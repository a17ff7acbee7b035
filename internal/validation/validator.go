// Package validation cross-checks the arithmetic of a parsed receipt.
//
// Findings are returned as data, never as errors. Validate is a pure function
// of its input: calling it twice on the same receipt yields the same issues.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/mmynk/receiptsplit/internal/models"
)

// Tolerance is the largest difference treated as rounding noise.
const Tolerance = 0.01

// Validate checks a receipt and returns its issues in order: subtotal check,
// total check, then structural checks.
func Validate(receipt models.Receipt) []models.ValidationIssue {
	issues := make([]models.ValidationIssue, 0)
	issues = append(issues, validateSubtotal(receipt)...)
	issues = append(issues, validateTotal(receipt)...)
	issues = append(issues, validateRequiredFields(receipt)...)
	return issues
}

// HasBlockingIssues reports whether any issue has error severity.
func HasBlockingIssues(issues []models.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// ApplyFix returns a copy of receipt with the issue's suggested correction
// applied. It reports false when the issue has no one-click correction.
func ApplyFix(receipt models.Receipt, issue models.ValidationIssue) (models.Receipt, bool) {
	if issue.Expected == nil {
		return receipt, false
	}
	fixed := receipt.Clone()
	switch issue.Type {
	case models.IssueSubtotalMismatch:
		fixed.Subtotal = models.Amount(*issue.Expected)
	case models.IssueTotalMismatch:
		fixed.Total = models.Amount(*issue.Expected)
	default:
		return receipt, false
	}
	return fixed, true
}

func validateSubtotal(receipt models.Receipt) []models.ValidationIssue {
	if receipt.Subtotal == nil {
		return nil
	}

	calculated := receipt.ItemsTotal()
	if math.Abs(calculated-*receipt.Subtotal) <= Tolerance {
		return nil
	}

	return []models.ValidationIssue{{
		Type:     models.IssueSubtotalMismatch,
		Severity: models.SeverityWarning,
		Message:  "Line items total does not match subtotal",
		Field:    "subtotal",
		Expected: models.Amount(calculated),
		Actual:   models.Amount(*receipt.Subtotal),
	}}
}

func validateTotal(receipt models.Receipt) []models.ValidationIssue {
	if receipt.Total == nil {
		return nil
	}
	if receipt.Subtotal == nil && receipt.Tax == nil && receipt.ServiceCharge == nil {
		return nil
	}

	calculated := models.ValueOf(receipt.Subtotal) + models.ValueOf(receipt.Tax) + models.ValueOf(receipt.ServiceCharge)
	if math.Abs(calculated-*receipt.Total) <= Tolerance {
		return nil
	}

	return []models.ValidationIssue{{
		Type:     models.IssueTotalMismatch,
		Severity: models.SeverityWarning,
		Message:  "Subtotal + tax + service charge does not match total",
		Field:    "total",
		Expected: models.Amount(calculated),
		Actual:   models.Amount(*receipt.Total),
	}}
}

func validateRequiredFields(receipt models.Receipt) []models.ValidationIssue {
	if len(receipt.Items) == 0 {
		return []models.ValidationIssue{{
			Type:     models.IssueEmptyReceipt,
			Severity: models.SeverityError,
			Message:  "Receipt has no line items",
		}}
	}

	var issues []models.ValidationIssue
	for i, item := range receipt.Items {
		if strings.TrimSpace(item.Description) == "" {
			issues = append(issues, models.ValidationIssue{
				Type:     models.IssueMissingDescription,
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("Item #%d has no description", i+1),
				Field:    fmt.Sprintf("items[%d].description", i),
			})
		}

		if item.TotalPrice == nil && (item.Quantity == nil || item.UnitPrice == nil) {
			issues = append(issues, models.ValidationIssue{
				Type:     models.IssueIncompletePricing,
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("Item #%d has incomplete pricing information", i+1),
				Field:    fmt.Sprintf("items[%d]", i),
			})
		}
	}
	return issues
}

