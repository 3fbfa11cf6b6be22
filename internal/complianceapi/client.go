// Package complianceapi is the HTTP client for the external Compliance
// Service: the single boundary the back office consumes for document
// extraction, rule derivation, payment parsing, and AI validation.
//
// Every method is one independent round trip. The client never retries on
// its own; retry policy belongs to callers. Transport-level failures map to
// *compliance.ConnectivityError and non-success responses map to
// *compliance.ServiceError carrying the service's detail text verbatim.
package complianceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultRateLimit = 5 // requests per second
	defaultBurst     = 10
)

// Config holds client construction parameters.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Client talks to the Compliance Service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a Compliance Service client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("compliance service base URL required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger.Named("complianceapi"),
	}, nil
}

// Probe checks service liveness. Any transport error or non-success status
// is a probe failure.
func (c *Client) Probe(ctx context.Context) (*ServiceInfo, error) {
	var info ServiceInfo
	if err := c.doJSON(ctx, http.MethodGet, "/", nil, "probe", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UploadRulebook sends a rulebook document for the given scheme. The service
// replaces its stored rulebook for that scheme and re-derives the rule set;
// subsequent FetchRulebooks/FetchRulesLibrary calls reflect the new
// generation.
func (c *Client) UploadRulebook(ctx context.Context, scheme, filename string, file []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}

	query := url.Values{"scheme": {scheme}}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload-rulebook?"+query.Encode(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.send(req, "upload rulebook", &resp); err != nil {
		return nil, err
	}

	c.logger.Info("rulebook uploaded",
		zap.String("scheme", scheme),
		zap.String("filename", resp.Filename),
		zap.Int("pages", resp.Pages),
		zap.Int("rules_extracted", resp.RulesExtracted))

	return &resp.UploadResult, nil
}

// DeleteRulebook removes the service's stored rulebook for a scheme.
func (c *Client) DeleteRulebook(ctx context.Context, scheme string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/rulebooks/"+url.PathEscape(scheme), nil, "delete rulebook", nil)
}

// FetchRulebooks returns the service's rulebook metadata keyed by scheme.
func (c *Client) FetchRulebooks(ctx context.Context) (map[string]compliance.Rulebook, error) {
	var resp rulebooksResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/rulebooks", nil, "fetch rulebooks", &resp); err != nil {
		return nil, err
	}

	books := make(map[string]compliance.Rulebook, len(resp.Details))
	for scheme, d := range resp.Details {
		rb := compliance.Rulebook{
			Scheme:     scheme,
			Filename:   d.Filename,
			PageCount:  d.Pages,
			TextLength: d.TextLength,
			Summary:    d.Summary,
		}
		if t, err := time.Parse(time.RFC3339, d.UploadDate); err == nil {
			rb.UploadDate = t
		}
		books[scheme] = rb
	}
	return books, nil
}

// FetchRulesLibrary returns the authoritative rule set in source order.
func (c *Client) FetchRulesLibrary(ctx context.Context) ([]compliance.Rule, error) {
	var resp rulesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/rules", nil, "fetch rules library", &resp); err != nil {
		return nil, err
	}
	for i := range resp.Rules {
		if !compliance.ValidSeverity(resp.Rules[i].Severity) {
			resp.Rules[i].Severity = compliance.SeverityMedium
		}
	}
	return resp.Rules, nil
}

// ParsePaymentDocument submits a payment document for parsing and returns
// the extracted fields.
func (c *Client) ParsePaymentDocument(ctx context.Context, file []byte, format string) (*ParsedPayment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "payment."+format)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload-payment", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp parseResponse
	if err := c.send(req, "parse payment document", &resp); err != nil {
		return nil, err
	}
	return &resp.PaymentData, nil
}

// ValidatePayment asks the service to validate canonical payment data
// against the given scheme's rulebook.
//
// Status is derived from the returned violations so the result always holds
// the invariant: non-compliant exactly when violations are present. AITime,
// Confidence, and RulebookSource are opaque passthrough values.
func (c *Client) ValidatePayment(ctx context.Context, payment compliance.PaymentData, scheme string) (*compliance.ValidationResult, error) {
	body := validateRequest{
		PaymentData: map[string]string{
			"id":            payment.MessageID,
			"message_id":    payment.MessageID,
			"amount":        payment.Amount.String(),
			"currency":      payment.Currency,
			"debtor_name":   payment.DebtorName,
			"creditor_name": payment.CreditorName,
			"scheme":        payment.Scheme,
		},
		Scheme: scheme,
	}

	var resp validateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/validate", body, "validate payment", &resp); err != nil {
		return nil, err
	}

	violations := resp.Violations
	if violations == nil {
		violations = []compliance.Violation{}
	}
	for i := range violations {
		if !compliance.ValidSeverity(violations[i].Severity) {
			violations[i].Severity = compliance.SeverityMedium
		}
	}

	status := compliance.StatusCompliant
	if len(violations) > 0 {
		status = compliance.StatusNonCompliant
	}

	result := &compliance.ValidationResult{
		ID:             resp.ID,
		Scheme:         resp.Scheme,
		Amount:         resp.Amount,
		Currency:       resp.Currency,
		Sender:         resp.Sender,
		Receiver:       resp.Receiver,
		Status:         status,
		Violations:     violations,
		AITime:         resp.AITime,
		Confidence:     resp.Confidence,
		RulebookSource: resp.RulebookSource,
	}
	if result.ID == "" {
		result.ID = payment.MessageID
	}
	if result.Scheme == "" {
		result.Scheme = scheme
	}
	if result.RulebookSource == "" {
		result.RulebookSource = compliance.RulebookSourceDefault
	}
	return result, nil
}

// FetchStatistics returns the service's global aggregate fields.
func (c *Client) FetchStatistics(ctx context.Context) (*compliance.StatisticsReport, error) {
	var report compliance.StatisticsReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/statistics", nil, "fetch statistics", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// newRequest builds a request with base URL, context, and auth header.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// doJSON performs a round trip with an optional JSON body and decodes a JSON
// response into out (out may be nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, op string, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

// send executes the request, triages the status code, and decodes the body.
func (c *Client) send(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &compliance.ConnectivityError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}

	c.logger.Debug("compliance service call",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(data)
		var er errorResponse
		if err := json.Unmarshal(data, &er); err == nil && er.Detail != "" {
			detail = er.Detail
		}
		return &compliance.ServiceError{Operation: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}
