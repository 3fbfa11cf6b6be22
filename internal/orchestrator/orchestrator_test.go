package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeValidator struct {
	mu         sync.Mutex
	calls      int
	lastScheme string
	err        error
	fn         func(payment compliance.PaymentData) *compliance.ValidationResult
}

func (f *fakeValidator) ValidatePayment(ctx context.Context, payment compliance.PaymentData, scheme string) (*compliance.ValidationResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastScheme = scheme
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.fn != nil {
		return f.fn(payment), nil
	}
	return &compliance.ValidationResult{
		ID:         payment.MessageID,
		Scheme:     payment.Scheme,
		Amount:     payment.Amount.String(),
		Currency:   payment.Currency,
		Status:     compliance.StatusCompliant,
		Violations: []compliance.Violation{},
	}, nil
}

func (f *fakeValidator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGate struct {
	err error
}

func (f *fakeGate) Require() error { return f.err }

func newTestOrchestrator(v Validator, gate Gate) *Orchestrator {
	ink := intake.New(nil, []string{"SEPA", "SWIFT"}, "SEPA", zap.NewNop())
	return New(v, ink, gate, zap.NewNop())
}

func validPayload(id string) intake.StructuredPayment {
	return intake.StructuredPayment{
		MessageID: id,
		Amount:    "100.00",
		Currency:  "EUR",
		Scheme:    "SEPA",
	}
}

func TestSubmitStructured_Success(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	sub, err := o.SubmitStructured(context.Background(), validPayload("MSG-1"), "SEPA")
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, sub.Phase)
	require.NotNil(t, sub.Result)
	assert.Equal(t, "MSG-1", sub.Result.ID)
	assert.Equal(t, compliance.StatusCompliant, sub.Result.Status)
	assert.False(t, sub.EndedAt.IsZero())

	history := o.History()
	require.Len(t, history, 1)
	assert.Equal(t, "MSG-1", history[0].ID)
}

func TestSubmitStructured_MalformedInputNeverDispatches(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	sub, err := o.SubmitStructured(context.Background(), intake.StructuredPayment{
		MessageID: "MSG-2",
		Amount:    "not a number",
		Currency:  "EUR",
	}, "SEPA")

	var malformed *compliance.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, PhaseFailed, sub.Phase)
	assert.Zero(t, v.callCount(), "malformed input must not reach the validator")
	assert.Zero(t, o.HistorySize())
}

func TestSubmitStructured_PartialFailureRetainsPayment(t *testing.T) {
	svcErr := &compliance.ServiceError{Operation: "validate_payment", StatusCode: 500, Detail: "model unavailable"}
	v := &fakeValidator{err: svcErr}
	o := newTestOrchestrator(v, nil)

	sub, err := o.SubmitStructured(context.Background(), validPayload("MSG-3"), "SEPA")

	var partial *compliance.PartialFailureError
	require.ErrorAs(t, err, &partial)
	require.NotNil(t, partial.Payment, "parsed payment must survive a validation failure")
	assert.Equal(t, "MSG-3", partial.Payment.MessageID)
	assert.ErrorIs(t, err, svcErr)

	assert.Equal(t, PhaseFailed, sub.Phase)
	assert.Nil(t, sub.Result)
	assert.Zero(t, o.HistorySize(), "partial failures record no history")
}

func TestSubmitStructured_EmptySchemeFallsBackToCanonical(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	// Neither the submit argument nor the payload names a scheme; intake
	// resolves the default and that is what must reach the service.
	payload := intake.StructuredPayment{MessageID: "MSG-9", Amount: "10", Currency: "EUR"}
	sub, err := o.SubmitStructured(context.Background(), payload, "")
	require.NoError(t, err)

	v.mu.Lock()
	got := v.lastScheme
	v.mu.Unlock()
	assert.Equal(t, "SEPA", got)
	assert.Equal(t, "SEPA", sub.Scheme)
}

func TestSubmitStructured_GateFastFails(t *testing.T) {
	v := &fakeValidator{}
	gateErr := &compliance.ConnectivityError{Cause: errors.New("connection refused")}
	o := newTestOrchestrator(v, &fakeGate{err: gateErr})

	sub, err := o.SubmitStructured(context.Background(), validPayload("MSG-4"), "SEPA")

	var connErr *compliance.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, PhaseFailed, sub.Phase)
	assert.Zero(t, v.callCount(), "gated submission must not dispatch")
}

func TestSubmitDocument_ParseFailureLeavesNothing(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	sub, err := o.SubmitDocument(context.Background(), []byte("payment"), "csv", "SEPA")

	var malformed *compliance.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, PhaseFailed, sub.Phase)
	assert.Nil(t, sub.Payment, "phase 1 failure carries no partial data")
	assert.Nil(t, sub.Result)
	assert.Zero(t, v.callCount(), "validation must not start after a failed parse")
	assert.Zero(t, o.HistorySize())
}

func TestSubmitDocument_JSONSuccess(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	doc := []byte(`{"message_id":"MSG-5","amount":"42.00","currency":"EUR","scheme":"SWIFT"}`)
	sub, err := o.SubmitDocument(context.Background(), doc, "json", "SWIFT")
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, sub.Phase)
	require.NotNil(t, sub.Payment)
	assert.Equal(t, "SWIFT", sub.Payment.Scheme)
	assert.Equal(t, 1, v.callCount())
}

func TestHistory_MostRecentFirst(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	for i := 1; i <= 3; i++ {
		_, err := o.SubmitStructured(context.Background(), validPayload(fmt.Sprintf("MSG-%d", i)), "SEPA")
		require.NoError(t, err)
	}

	history := o.History()
	require.Len(t, history, 3)
	assert.Equal(t, "MSG-3", history[0].ID)
	assert.Equal(t, "MSG-2", history[1].ID)
	assert.Equal(t, "MSG-1", history[2].ID)

	// History returns a copy; mutating it does not touch the session.
	history[0] = nil
	assert.NotNil(t, o.History()[0])
}

func TestSubmitStructured_ConcurrentSubmissionsAllLand(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.SubmitStructured(context.Background(), validPayload(fmt.Sprintf("MSG-%d", i)), "SEPA")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, o.HistorySize())
	assert.Equal(t, n, v.callCount())
}

func TestSubmitBatch_FailuresDoNotAbort(t *testing.T) {
	v := &fakeValidator{fn: func(payment compliance.PaymentData) *compliance.ValidationResult {
		status := compliance.StatusCompliant
		var violations []compliance.Violation
		if payment.Currency == "XXX" {
			status = compliance.StatusNonCompliant
			violations = []compliance.Violation{{Rule: "currency", Issue: "unsupported", Severity: compliance.SeverityHigh}}
		}
		return &compliance.ValidationResult{
			ID:         payment.MessageID,
			Status:     status,
			Violations: violations,
		}
	}}
	o := newTestOrchestrator(v, nil)

	payloads := []intake.StructuredPayment{
		validPayload("MSG-1"),
		{MessageID: "MSG-2", Amount: "oops", Currency: "EUR"},
		{MessageID: "MSG-3", Amount: "10", Currency: "XXX"},
	}

	items := o.SubmitBatch(context.Background(), payloads, "SEPA")
	require.Len(t, items, 3)

	assert.NoError(t, items[0].Err)
	require.NotNil(t, items[0].Result)

	require.Error(t, items[1].Err)
	assert.Nil(t, items[1].Result)
	assert.NotEmpty(t, items[1].ErrMessage)

	assert.NoError(t, items[2].Err)
	require.NotNil(t, items[2].Result)
	assert.Equal(t, compliance.StatusNonCompliant, items[2].Result.Status)

	// Only the two completed validations enter history.
	assert.Equal(t, 2, o.HistorySize())
}

func TestOnComplete_FiresOnlyForFullSuccess(t *testing.T) {
	v := &fakeValidator{}
	o := newTestOrchestrator(v, nil)

	var completed []string
	o.OnComplete(func(result *compliance.ValidationResult) {
		completed = append(completed, result.ID)
	})

	_, err := o.SubmitStructured(context.Background(), validPayload("MSG-1"), "SEPA")
	require.NoError(t, err)

	v.err = &compliance.ServiceError{Operation: "validate_payment", StatusCode: 502, Detail: "down"}
	_, err = o.SubmitStructured(context.Background(), validPayload("MSG-2"), "SEPA")
	require.Error(t, err)

	assert.Equal(t, []string{"MSG-1"}, completed)
}
