// Package intake canonicalizes inbound payment representations.
//
// Structured input is validated locally; XML and text documents are
// delegated to the Compliance Service's parse endpoint and the loosely
// structured response is mapped into canonical PaymentData. JSON documents
// carry already-structured payments and never leave the process.
package intake

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/complianceapi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Document formats accepted for payment ingestion. JSON is parsed locally;
// the rest go through the external parse service.
const (
	FormatXML  = "xml"
	FormatTXT  = "txt"
	FormatJSON = "json"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Parser is the slice of the Compliance Service the intake uses.
type Parser interface {
	ParsePaymentDocument(ctx context.Context, file []byte, format string) (*complianceapi.ParsedPayment, error)
}

// StructuredPayment is inline structured input as submitted by callers.
// Amount stays a string until validated.
type StructuredPayment struct {
	MessageID    string `json:"message_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	DebtorName   string `json:"debtor_name,omitempty"`
	CreditorName string `json:"creditor_name,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
}

// Intake validates and canonicalizes payments.
type Intake struct {
	parser        Parser
	knownSchemes  map[string]bool
	defaultScheme string
	logger        *zap.Logger
}

// New creates an intake. defaultScheme is used when input carries no scheme
// or an unknown one.
func New(parser Parser, knownSchemes []string, defaultScheme string, logger *zap.Logger) *Intake {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(knownSchemes))
	for _, s := range knownSchemes {
		known[strings.ToUpper(s)] = true
	}
	return &Intake{
		parser:        parser,
		knownSchemes:  known,
		defaultScheme: defaultScheme,
		logger:        logger.Named("intake"),
	}
}

// IngestStructured validates inline structured input and returns canonical
// PaymentData. Validation failures are MalformedInputError; no external call
// is made.
func (i *Intake) IngestStructured(payload StructuredPayment) (compliance.PaymentData, error) {
	if payload.MessageID == "" {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "message_id", Reason: "message id is required"}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
	if err != nil {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "amount", Reason: "amount must be numeric"}
	}
	if amount.IsNegative() {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "amount", Reason: "amount must not be negative"}
	}

	currency := strings.ToUpper(strings.TrimSpace(payload.Currency))
	if !currencyPattern.MatchString(currency) {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "currency", Reason: "currency must be a 3-letter code"}
	}

	return compliance.PaymentData{
		MessageID:    payload.MessageID,
		Amount:       amount,
		Currency:     currency,
		DebtorName:   payload.DebtorName,
		CreditorName: payload.CreditorName,
		Scheme:       i.resolveScheme(payload.Scheme),
	}, nil
}

// IngestDocument canonicalizes a payment document. XML and text formats are
// parsed by the external service; JSON is decoded locally as structured
// input. Any other format fails locally without a network round trip.
func (i *Intake) IngestDocument(ctx context.Context, file []byte, format string) (compliance.PaymentData, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return i.ingestJSON(file)
	case FormatXML, FormatTXT:
	default:
		return compliance.PaymentData{}, &compliance.MalformedInputError{
			Field:  "format",
			Reason: "unsupported payment document format " + format + " (allowed: xml, txt, json)",
		}
	}

	parsed, err := i.parser.ParsePaymentDocument(ctx, file, strings.ToLower(format))
	if err != nil {
		return compliance.PaymentData{}, err
	}
	return i.fromParsed(parsed)
}

// ingestJSON decodes a structured payment from raw JSON bytes.
func (i *Intake) ingestJSON(file []byte) (compliance.PaymentData, error) {
	var payload StructuredPayment
	if err := json.Unmarshal(file, &payload); err != nil {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "document", Reason: "invalid JSON payment document"}
	}
	return i.IngestStructured(payload)
}

// fromParsed maps the parse service's loose record into canonical
// PaymentData, failing fast on missing or invalid required fields.
func (i *Intake) fromParsed(parsed *complianceapi.ParsedPayment) (compliance.PaymentData, error) {
	messageID := parsed.TransactionID
	if messageID == "" {
		messageID = parsed.MessageID
	}
	if messageID == "" {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "message_id", Reason: "parsed document carries no message or transaction id"}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(parsed.Amount))
	if err != nil {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "amount", Reason: "parsed document carries no numeric amount"}
	}
	if amount.IsNegative() {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "amount", Reason: "amount must not be negative"}
	}

	currency := strings.ToUpper(strings.TrimSpace(parsed.Currency))
	if !currencyPattern.MatchString(currency) {
		return compliance.PaymentData{}, &compliance.MalformedInputError{Field: "currency", Reason: "parsed document carries no 3-letter currency code"}
	}

	debtor := parsed.DebtorIBAN
	if debtor == "" {
		debtor = parsed.DebtorName
	}
	creditor := parsed.CreditorIBAN
	if creditor == "" {
		creditor = parsed.CreditorName
	}

	return compliance.PaymentData{
		MessageID:    messageID,
		Amount:       amount,
		Currency:     currency,
		DebtorName:   debtor,
		CreditorName: creditor,
		Scheme:       i.resolveScheme(parsed.Scheme),
		RawPayload:   parsed.Raw,
	}, nil
}

// resolveScheme returns the scheme uppercased when known, the default
// otherwise.
func (i *Intake) resolveScheme(scheme string) string {
	s := strings.ToUpper(strings.TrimSpace(scheme))
	if s == "" || !i.knownSchemes[s] {
		return i.defaultScheme
	}
	return s
}
