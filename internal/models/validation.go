package models

// IssueType classifies a ValidationIssue.
type IssueType string

const (
	IssueSubtotalMismatch   IssueType = "subtotal_mismatch"
	IssueTotalMismatch      IssueType = "total_mismatch"
	IssueEmptyReceipt       IssueType = "empty_receipt"
	IssueMissingDescription IssueType = "missing_description"
	IssueIncompletePricing  IssueType = "incomplete_pricing"
)

// Severity says whether an issue blocks review.
type Severity string

const (
	// SeverityWarning issues are advisory only.
	SeverityWarning Severity = "warning"
	// SeverityError issues block proceeding past review.
	SeverityError Severity = "error"
)

// ValidationIssue is a finding about a Receipt, returned as data for the
// caller to surface or ignore.
type ValidationIssue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`

	// Field is a path into the receipt for highlighting, e.g. "subtotal" or
	// "items[2].description".
	Field string `json:"field,omitempty"`

	// Expected and Actual are set on mismatches so the caller can offer a
	// one-click correction.
	Expected *float64 `json:"expected,omitempty"`
	Actual   *float64 `json:"actual,omitempty"`
}
