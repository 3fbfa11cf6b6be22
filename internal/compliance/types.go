// Package compliance defines the canonical records shared across the back
// office: rulebooks, extracted rules, payments, validation results, and the
// error taxonomy used at every boundary.
//
// Loosely structured responses from the external Compliance Service are mapped
// into these types at the client boundary; nothing downstream handles raw
// maps or unchecked strings.
package compliance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies how serious a rule or violation is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ValidSeverity reports whether s is one of the three known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Status is the outcome of a payment validation.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusNonCompliant Status = "non-compliant"
)

// Rulebook source values reported on validation results.
const (
	RulebookSourceDefault  = "default"
	RulebookSourceUploaded = "uploaded"
)

// Rulebook is the registry entry for one scheme's regulatory document.
// At most one live rulebook exists per scheme; uploading a new document
// replaces the prior entry and starts a new generation.
type Rulebook struct {
	Scheme     string    `json:"scheme"`
	Filename   string    `json:"filename"`
	PageCount  int       `json:"page_count"`
	TextLength int       `json:"text_length"`
	UploadDate time.Time `json:"upload_date"`
	Summary    string    `json:"summary,omitempty"`

	// Generation is an opaque handle identifying the upload that produced
	// this entry. Rules carry the generation of the rulebook they were
	// extracted from; generations are never merged.
	Generation string `json:"generation"`
}

// Rule is one structured compliance requirement extracted from a rulebook.
type Rule struct {
	ID          string    `json:"id"`
	Scheme      string    `json:"scheme"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Category    string    `json:"category"`
	XMLPath     string    `json:"xml_path,omitempty"`
	Example     string    `json:"example,omitempty"`
	Generation  string    `json:"generation,omitempty"`
	Version     string    `json:"version,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// PaymentData is the canonical structured payment produced by intake,
// either from inline structured input or from an externally parsed document.
type PaymentData struct {
	MessageID    string          `json:"message_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DebtorName   string          `json:"debtor_name,omitempty"`
	CreditorName string          `json:"creditor_name,omitempty"`
	Scheme       string          `json:"scheme"`

	// RawPayload references the original wire payload the payment was
	// derived from. Empty for inline structured input.
	RawPayload string `json:"raw_payload,omitempty"`
}

// Violation is a rule a specific payment failed to satisfy. A violation is
// owned by exactly one ValidationResult and never shared between results.
type Violation struct {
	Rule       string   `json:"rule"`
	XMLPath    string   `json:"xml_path,omitempty"`
	Issue      string   `json:"issue"`
	Impact     string   `json:"impact"`
	Suggestion string   `json:"suggestion"`
	Severity   Severity `json:"severity"`
}

// ValidationResult is the immutable outcome of one completed validation.
// Violations keep detection order and are never reordered.
//
// AITime and Confidence are opaque, externally reported metadata; they are
// passed through verbatim and never recomputed locally.
type ValidationResult struct {
	ID             string      `json:"id"`
	Scheme         string      `json:"scheme"`
	Amount         string      `json:"amount"`
	Currency       string      `json:"currency"`
	Sender         string      `json:"sender,omitempty"`
	Receiver       string      `json:"receiver,omitempty"`
	Status         Status      `json:"status"`
	Violations     []Violation `json:"violations"`
	AITime         string      `json:"ai_time"`
	Confidence     float64     `json:"confidence"`
	RulebookSource string      `json:"rulebook_source"`
}

// SessionStatistics aggregates the current session. The four counters are
// pure functions of history and library snapshot; AIMode and CostSavings
// only ever come from an externally fetched report.
type SessionStatistics struct {
	TotalProcessed   int     `json:"total_processed"`
	Compliant        int     `json:"compliant"`
	NonCompliant     int     `json:"non_compliant"`
	RulesLibrarySize int     `json:"rules_library_size"`
	AIMode           string  `json:"ai_mode,omitempty"`
	CostSavings      float64 `json:"cost_savings,omitempty"`
}

// StatisticsReport carries externally reported aggregate fields. Pointer
// fields distinguish "absent" from zero: any field present in the report
// overrides the locally derived value, absent fields keep the local one.
type StatisticsReport struct {
	TotalProcessed   *int     `json:"total_processed,omitempty"`
	Compliant        *int     `json:"compliant,omitempty"`
	NonCompliant     *int     `json:"non_compliant,omitempty"`
	RulesLibrarySize *int     `json:"rules_library_size,omitempty"`
	AIMode           *string  `json:"ai_mode,omitempty"`
	CostSavings      *float64 `json:"cost_savings,omitempty"`
}
