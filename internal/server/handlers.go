package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/complianceapi"
	"github.com/clearlane/complianced/internal/intake"
	"github.com/clearlane/complianced/internal/orchestrator"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxUploadBytes caps rulebook and payment document uploads.
const maxUploadBytes = 32 << 20

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Connectivity string                     `json:"connectivity"`
	Cause        string                     `json:"cause,omitempty"`
	LastProbe    *time.Time                 `json:"last_probe,omitempty"`
	Service      *complianceapi.ServiceInfo `json:"service,omitempty"`
	Rulebooks    int                        `json:"rulebooks"`
	RulesLoaded  int                        `json:"rules_loaded"`
	HistorySize  int                        `json:"history_size"`
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Connectivity: string(s.monitor.State()),
		Rulebooks:    s.registry.Size(),
		RulesLoaded:  s.library.Size(),
		HistorySize:  s.orchestrator.HistorySize(),
	}
	if cause := s.monitor.Cause(); cause != nil {
		resp.Cause = cause.Error()
	}
	if t := s.monitor.LastProbe(); !t.IsZero() {
		resp.LastProbe = &t
	}
	if info := s.monitor.Info(); info != nil {
		resp.Service = info
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProbe(c echo.Context) error {
	state, err := s.monitor.Probe(c.Request().Context())

	// The probe itself always resolves to a state; a failed round trip is a
	// DISCONNECTED observation, not a request error.
	resp := StatusResponse{Connectivity: string(state)}
	if err != nil {
		resp.Cause = err.Error()
	}
	if info := s.monitor.Info(); info != nil {
		resp.Service = info
	}
	if t := s.monitor.LastProbe(); !t.IsZero() {
		resp.LastProbe = &t
	}
	return c.JSON(http.StatusOK, resp)
}

// readUpload extracts the uploaded file from a multipart request.
func readUpload(c echo.Context) (filename string, data []byte, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, &compliance.MalformedInputError{Field: "file", Reason: "multipart file field is required"}
	}
	if fh.Size > maxUploadBytes {
		return "", nil, &compliance.MalformedInputError{Field: "file", Reason: "file exceeds upload size limit"}
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, &compliance.MalformedInputError{Field: "file", Reason: "unreadable multipart file"}
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", nil, &compliance.MalformedInputError{Field: "file", Reason: "unreadable multipart file"}
	}
	if len(data) > maxUploadBytes {
		return "", nil, &compliance.MalformedInputError{Field: "file", Reason: "file exceeds upload size limit"}
	}
	return fh.Filename, data, nil
}

func (s *Server) handleUploadRulebook(c echo.Context) error {
	scheme := c.FormValue("scheme")
	if scheme == "" {
		scheme = c.QueryParam("scheme")
	}

	filename, data, err := readUpload(c)
	if err != nil {
		return s.writeError(c, err)
	}

	entry, err := s.registry.Upload(c.Request().Context(), strings.ToUpper(scheme), filename, data)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// RulebooksResponse is the response body for GET /api/v1/rulebooks.
type RulebooksResponse struct {
	Rulebooks map[string]compliance.Rulebook `json:"rulebooks"`
	Total     int                            `json:"total"`
}

func (s *Server) handleListRulebooks(c echo.Context) error {
	entries := s.registry.List()
	return c.JSON(http.StatusOK, RulebooksResponse{Rulebooks: entries, Total: len(entries)})
}

func (s *Server) handleRefreshRulebooks(c echo.Context) error {
	if err := s.registry.Refresh(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	entries := s.registry.List()
	return c.JSON(http.StatusOK, RulebooksResponse{Rulebooks: entries, Total: len(entries)})
}

func (s *Server) handleGetRulebook(c echo.Context) error {
	entry, err := s.registry.Get(strings.ToUpper(c.Param("scheme")))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteRulebook(c echo.Context) error {
	if err := s.registry.Delete(c.Request().Context(), strings.ToUpper(c.Param("scheme"))); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RulesResponse is the response body for GET /api/v1/rules.
type RulesResponse struct {
	Rules []compliance.Rule `json:"rules"`
	Total int               `json:"total"`
}

func (s *Server) handleQueryRules(c echo.Context) error {
	scheme := strings.ToUpper(c.QueryParam("scheme"))
	severity := compliance.Severity(strings.ToLower(c.QueryParam("severity")))
	if severity != "" && !compliance.ValidSeverity(severity) {
		return s.writeError(c, &compliance.MalformedInputError{
			Field:  "severity",
			Reason: "severity must be one of low, medium, high",
		})
	}

	rules := make([]compliance.Rule, 0)
	for rule := range s.library.Query(scheme, severity) {
		rules = append(rules, rule)
	}
	return c.JSON(http.StatusOK, RulesResponse{Rules: rules, Total: len(rules)})
}

func (s *Server) handleReloadRules(c echo.Context) error {
	if err := s.library.Load(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.library.Aggregate())
}

func (s *Server) handleSubmitStructured(c echo.Context) error {
	var payload intake.StructuredPayment
	if err := c.Bind(&payload); err != nil {
		s.logger.Warn("invalid structured payment request", zap.Error(err))
		return s.writeError(c, &compliance.MalformedInputError{Field: "body", Reason: "invalid request body"})
	}

	sub, err := s.orchestrator.SubmitStructured(c.Request().Context(), payload, payload.Scheme)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleSubmitDocument(c echo.Context) error {
	filename, data, err := readUpload(c)
	if err != nil {
		return s.writeError(c, err)
	}

	format := strings.ToLower(c.FormValue("format"))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	}
	scheme := c.FormValue("scheme")

	sub, err := s.orchestrator.SubmitDocument(c.Request().Context(), data, format, scheme)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// BatchRequest is the request body for POST /api/v1/payments/batch.
type BatchRequest struct {
	Payments []intake.StructuredPayment `json:"payments"`
	Scheme   string                     `json:"scheme,omitempty"`
}

// BatchResponse is the response body for POST /api/v1/payments/batch.
type BatchResponse struct {
	Items     []orchestrator.BatchItem `json:"items"`
	Total     int                      `json:"total"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
}

func (s *Server) handleSubmitBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid batch request", zap.Error(err))
		return s.writeError(c, &compliance.MalformedInputError{Field: "body", Reason: "invalid request body"})
	}
	if len(req.Payments) == 0 {
		return s.writeError(c, &compliance.MalformedInputError{Field: "payments", Reason: "at least one payment is required"})
	}

	items := s.orchestrator.SubmitBatch(c.Request().Context(), req.Payments, req.Scheme)

	resp := BatchResponse{Total: len(items)}
	for _, item := range items {
		resp.Items = append(resp.Items, item)
		if item.Err != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HistoryResponse is the response body for GET /api/v1/history.
type HistoryResponse struct {
	History []*compliance.ValidationResult `json:"history"`
	Total   int                            `json:"total"`
}

func (s *Server) handleHistory(c echo.Context) error {
	history := s.orchestrator.History()
	return c.JSON(http.StatusOK, HistoryResponse{History: history, Total: len(history)})
}

// Statistics are recomputed from the live history and library snapshot on
// every read, so a rules reload or invalidation shows up immediately.
func (s *Server) handleStatistics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.Update(s.orchestrator.History(), s.library.Size()))
}

func (s *Server) handleRefreshStatistics(c echo.Context) error {
	if err := s.stats.RefreshReport(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.stats.Update(s.orchestrator.History(), s.library.Size()))
}
