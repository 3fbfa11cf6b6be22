package complianceapi

import "github.com/clearlane/complianced/internal/compliance"

// ServiceInfo is the payload reported by a successful liveness probe.
type ServiceInfo struct {
	Service          string `json:"service"`
	Version          string `json:"version"`
	Mode             string `json:"mode"`
	Status           string `json:"status"`
	AIModel          string `json:"ai_model"`
	RulebookUploaded bool   `json:"rulebook_uploaded"`
}

// UploadResult is what the service reports after ingesting a rulebook.
type UploadResult struct {
	Scheme         string            `json:"scheme"`
	Filename       string            `json:"filename"`
	Pages          int               `json:"pages"`
	TextLength     int               `json:"text_length"`
	RulesExtracted int               `json:"rules_extracted"`
	Summary        string            `json:"summary"`
	Rules          []compliance.Rule `json:"rules_summary"`
}

// ParsedPayment holds the fields the parse endpoint extracted from a payment
// document. It is a loosely populated wire record; intake turns it into
// canonical PaymentData and rejects anything unusable.
type ParsedPayment struct {
	MessageID     string `json:"message_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	DebtorName    string `json:"debtor_name"`
	DebtorIBAN    string `json:"debtor_iban"`
	CreditorName  string `json:"creditor_name"`
	CreditorIBAN  string `json:"creditor_iban"`
	Scheme        string `json:"scheme"`
	Raw           string `json:"raw_xml"`
}

// uploadResponse is the raw upload-rulebook response envelope.
type uploadResponse struct {
	Success bool `json:"success"`
	UploadResult
}

// parseResponse is the raw upload-payment response envelope.
type parseResponse struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	PaymentData ParsedPayment `json:"payment_data"`
}

// rulebooksResponse is the raw rulebook listing.
type rulebooksResponse struct {
	Total   int                       `json:"total"`
	Details map[string]rulebookDetail `json:"details"`
}

type rulebookDetail struct {
	Filename   string `json:"filename"`
	Pages      int    `json:"pages"`
	UploadDate string `json:"upload_date"`
	TextLength int    `json:"text_length"`
	Summary    string `json:"summary"`
}

// rulesResponse is the raw rules-library listing, in source order.
type rulesResponse struct {
	Total int               `json:"total_rules"`
	Rules []compliance.Rule `json:"rules"`
}

// validateRequest is the body sent to the validate endpoint.
type validateRequest struct {
	PaymentData map[string]string `json:"payment_data"`
	Scheme      string            `json:"scheme"`
}

// validateResponse is the raw validation outcome.
type validateResponse struct {
	ID             string                 `json:"id"`
	Scheme         string                 `json:"scheme"`
	Amount         string                 `json:"amount"`
	Currency       string                 `json:"currency"`
	Sender         string                 `json:"sender"`
	Receiver       string                 `json:"receiver"`
	Status         string                 `json:"status"`
	Violations     []compliance.Violation `json:"violations"`
	AITime         string                 `json:"aiTime"`
	Confidence     float64                `json:"confidence"`
	RulebookSource string                 `json:"rulebookSource"`
}

// errorResponse is the service's failure envelope; Detail is propagated to
// callers verbatim.
type errorResponse struct {
	Detail string `json:"detail"`
}
