package complianceapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", RateLimit: 1000, Burst: 1000}, nil)
	require.NoError(t, err)
	return client, srv
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestProbe(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		json.NewEncoder(w).Encode(map[string]any{
			"service": "compliance", "version": "2.1", "status": "running",
		})
	}))

	info, err := client.Probe(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "compliance", info.Service)
	assert.Equal(t, "2.1", info.Version)
}

func TestSend_TransportFailureIsConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // deliberately dead endpoint

	client, err := New(Config{BaseURL: srv.URL, RateLimit: 1000, Burst: 1000}, nil)
	require.NoError(t, err)

	_, err = client.Probe(t.Context())
	var connErr *compliance.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Error(t, connErr.Cause)
}

func TestSend_ServiceErrorCarriesDetailVerbatim(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Unsupported file type. Please upload PDF or DOCX."})
	}))

	_, err := client.FetchRulesLibrary(t.Context())
	var svcErr *compliance.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusUnprocessableEntity, svcErr.StatusCode)
	assert.Equal(t, "Unsupported file type. Please upload PDF or DOCX.", svcErr.Detail)
}

func TestSend_NonJSONErrorBodyKeptAsDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	_, err := client.Probe(t.Context())
	var svcErr *compliance.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "upstream exploded", svcErr.Detail)
}

func TestUploadRulebook(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload-rulebook", r.URL.Path)
		assert.Equal(t, "SEPA", r.URL.Query().Get("scheme"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "sepa.pdf", header.Filename)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "scheme": "SEPA", "filename": "sepa.pdf",
			"pages": 42, "text_length": 9000, "rules_extracted": 15,
			"summary": "SEPA credit transfer rules",
		})
	}))

	result, err := client.UploadRulebook(t.Context(), "SEPA", "sepa.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "sepa.pdf", result.Filename)
	assert.Equal(t, 42, result.Pages)
	assert.Equal(t, 15, result.RulesExtracted)
}

func TestUploadRulebook_SchemeIsQueryEscaped(t *testing.T) {
	const scheme = "SEPA INST&v2"
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, scheme, r.URL.Query().Get("scheme"))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "scheme": scheme, "filename": "x.pdf"})
	}))

	result, err := client.UploadRulebook(t.Context(), scheme, "x.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, scheme, result.Scheme)
}

func TestFetchRulebooks(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rulebooks", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"total": 1,
			"details": map[string]any{
				"SEPA": map[string]any{
					"filename": "sepa.pdf", "pages": 42,
					"upload_date": "2026-08-20T10:30:00Z", "text_length": 9000,
				},
			},
		})
	}))

	books, err := client.FetchRulebooks(t.Context())
	require.NoError(t, err)
	require.Contains(t, books, "SEPA")
	assert.Equal(t, "sepa.pdf", books["SEPA"].Filename)
	assert.Equal(t, 2026, books["SEPA"].UploadDate.Year())
}

func TestFetchRulesLibrary_NormalizesUnknownSeverity(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"total_rules": 2,
			"rules": []map[string]any{
				{"id": "r1", "scheme": "SEPA", "severity": "high"},
				{"id": "r2", "scheme": "SEPA", "severity": "catastrophic"},
			},
		})
	}))

	rules, err := client.FetchRulesLibrary(t.Context())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, compliance.SeverityHigh, rules[0].Severity)
	assert.Equal(t, compliance.SeverityMedium, rules[1].Severity, "unknown severity normalizes to medium")
}

func TestValidatePayment_StatusDerivedFromViolations(t *testing.T) {
	payment := compliance.PaymentData{
		MessageID: "MSG-1",
		Amount:    decimal.RequireFromString("100.00"),
		Currency:  "EUR",
		Scheme:    "SEPA",
	}

	t.Run("compliant when no violations regardless of reported status", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				PaymentData map[string]string `json:"payment_data"`
				Scheme      string            `json:"scheme"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "MSG-1", req.PaymentData["message_id"])
			assert.Equal(t, "SEPA", req.Scheme)

			json.NewEncoder(w).Encode(map[string]any{
				"id": "MSG-1", "status": "non-compliant",
				"violations": []any{},
				"aiTime":     "1.2s", "confidence": 0.97, "rulebookSource": "uploaded",
			})
		}))

		result, err := client.ValidatePayment(t.Context(), payment, "SEPA")
		require.NoError(t, err)
		assert.Equal(t, compliance.StatusCompliant, result.Status)
		assert.NotNil(t, result.Violations)
		assert.Empty(t, result.Violations)
		assert.Equal(t, "1.2s", result.AITime)
		assert.Equal(t, 0.97, result.Confidence)
		assert.Equal(t, "uploaded", result.RulebookSource)
	})

	t.Run("non-compliant when violations present", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"status": "compliant",
				"violations": []map[string]any{
					{"rule": "IBAN format", "issue": "invalid check digits", "severity": "high"},
				},
			})
		}))

		result, err := client.ValidatePayment(t.Context(), payment, "SEPA")
		require.NoError(t, err)
		assert.Equal(t, compliance.StatusNonCompliant, result.Status)
		require.Len(t, result.Violations, 1)

		// Absent identifiers fall back to the submitted payment.
		assert.Equal(t, "MSG-1", result.ID)
		assert.Equal(t, "SEPA", result.Scheme)
		assert.Equal(t, compliance.RulebookSourceDefault, result.RulebookSource)
	})
}

func TestFetchStatistics_AbsentFieldsStayNil(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"total_processed": 12,
			"ai_mode":         "llm",
		})
	}))

	report, err := client.FetchStatistics(t.Context())
	require.NoError(t, err)
	require.NotNil(t, report.TotalProcessed)
	assert.Equal(t, 12, *report.TotalProcessed)
	assert.Equal(t, "llm", *report.AIMode)
	assert.Nil(t, report.Compliant, "absent report fields must stay nil")
	assert.Nil(t, report.CostSavings)
}

func TestClient_NoRetries(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "flaky"})
	}))

	_, err := client.Probe(t.Context())
	var svcErr *compliance.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 1, calls, "a failed call must be exactly one round trip")

	if errors.As(err, &svcErr) {
		assert.Equal(t, "flaky", svcErr.Detail)
	}
}
