// Package orchestrator drives the two-phase parse→validate pipeline for
// payment submissions and owns the session history.
//
// Each submission is a small state machine:
//
//	IDLE → PARSING (document inputs only) → VALIDATING → COMPLETE | FAILED
//
// Phase 2 never starts before phase 1 resolves. A phase-1 failure surfaces
// immediately with no result; a phase-2 failure after a successful parse is
// a PartialFailureError that retains the canonical PaymentData but records
// nothing in history. Only full successes enter history, most-recent-first,
// in completion order.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/intake"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validator is the slice of the Compliance Service the orchestrator uses.
type Validator interface {
	ValidatePayment(ctx context.Context, payment compliance.PaymentData, scheme string) (*compliance.ValidationResult, error)
}

// Ingestor canonicalizes inbound payments; satisfied by *intake.Intake.
type Ingestor interface {
	IngestStructured(payload intake.StructuredPayment) (compliance.PaymentData, error)
	IngestDocument(ctx context.Context, file []byte, format string) (compliance.PaymentData, error)
}

// Gate fast-fails submissions while the service is known unreachable;
// satisfied by *monitor.Monitor.
type Gate interface {
	Require() error
}

// Orchestrator sequences submissions and accumulates session history.
type Orchestrator struct {
	validator Validator
	ingestor  Ingestor
	gate      Gate
	logger    *zap.Logger

	// onComplete fires after a full success has been prepended to history.
	// The statistics aggregator hangs off this hook.
	onComplete func(*compliance.ValidationResult)

	mu      sync.Mutex
	history []*compliance.ValidationResult
}

// New creates an orchestrator. gate may be nil to disable the fast-fail
// check; onComplete may be nil.
func New(validator Validator, ingestor Ingestor, gate Gate, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		validator: validator,
		ingestor:  ingestor,
		gate:      gate,
		logger:    logger.Named("orchestrator"),
	}
}

// OnComplete registers the hook fired for every fully completed submission.
func (o *Orchestrator) OnComplete(fn func(*compliance.ValidationResult)) {
	o.onComplete = fn
}

// SubmitStructured validates an inline structured payment. Phase 1 is the
// local canonicalization; no parse round trip happens.
func (o *Orchestrator) SubmitStructured(ctx context.Context, payload intake.StructuredPayment, scheme string) (*Submission, error) {
	s := o.newSubmission(scheme)

	if err := o.preflight(); err != nil {
		return o.fail(s, err)
	}

	payment, err := o.ingestor.IngestStructured(payload)
	if err != nil {
		return o.fail(s, err)
	}
	s.Payment = &payment

	return o.validate(ctx, s, payment)
}

// SubmitDocument runs the full two-phase pipeline on a payment document.
func (o *Orchestrator) SubmitDocument(ctx context.Context, file []byte, format, scheme string) (*Submission, error) {
	s := o.newSubmission(scheme)

	if err := o.preflight(); err != nil {
		return o.fail(s, err)
	}

	s.Phase = PhaseParsing
	payment, err := o.ingestor.IngestDocument(ctx, file, format)
	if err != nil {
		// Phase 1 failed: no result, no partial data, nothing in history.
		return o.fail(s, err)
	}
	s.Payment = &payment

	return o.validate(ctx, s, payment)
}

// SubmitBatch validates structured payments in order. A failing item does
// not abort the batch; each item reports its own outcome.
func (o *Orchestrator) SubmitBatch(ctx context.Context, payloads []intake.StructuredPayment, scheme string) []BatchItem {
	items := make([]BatchItem, 0, len(payloads))
	for idx, payload := range payloads {
		sub, err := o.SubmitStructured(ctx, payload, scheme)
		item := BatchItem{Index: idx}
		if err != nil {
			item.Err = err
			item.ErrMessage = err.Error()
		} else {
			item.Result = sub.Result
		}
		items = append(items, item)
	}
	return items
}

// validate runs phase 2 and finalizes the submission.
func (o *Orchestrator) validate(ctx context.Context, s *Submission, payment compliance.PaymentData) (*Submission, error) {
	s.Phase = PhaseValidating

	// Intake already resolved the canonical scheme; an empty submit
	// argument falls back to it so the service never sees a blank scheme.
	if s.Scheme == "" {
		s.Scheme = payment.Scheme
	}

	result, err := o.validator.ValidatePayment(ctx, payment, s.Scheme)
	if err != nil {
		// Phase 1 succeeded, phase 2 failed: the caller keeps the parsed
		// payment, history stays untouched.
		s.Phase = PhaseFailed
		s.EndedAt = time.Now().UTC()
		return s, &compliance.PartialFailureError{Payment: s.Payment, Err: err}
	}

	s.Result = result
	s.Phase = PhaseComplete
	s.EndedAt = time.Now().UTC()

	// History is prepended under the lock in completion order. Two racing
	// submissions both land; whichever finishes last is history[0].
	o.mu.Lock()
	o.history = append([]*compliance.ValidationResult{result}, o.history...)
	o.mu.Unlock()

	o.logger.Info("submission complete",
		zap.String("submission_id", s.ID),
		zap.String("payment_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.Int("violations", len(result.Violations)))

	if o.onComplete != nil {
		o.onComplete(result)
	}
	return s, nil
}

// preflight consults the connectivity gate before any dispatch.
func (o *Orchestrator) preflight() error {
	if o.gate == nil {
		return nil
	}
	return o.gate.Require()
}

func (o *Orchestrator) newSubmission(scheme string) *Submission {
	return &Submission{
		ID:        uuid.NewString(),
		Phase:     PhaseIdle,
		Scheme:    scheme,
		StartedAt: time.Now().UTC(),
	}
}

func (o *Orchestrator) fail(s *Submission, err error) (*Submission, error) {
	s.Phase = PhaseFailed
	s.EndedAt = time.Now().UTC()
	return s, err
}

// History returns a copy of the session history, most-recent-first.
func (o *Orchestrator) History() []*compliance.ValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*compliance.ValidationResult, len(o.history))
	copy(out, o.history)
	return out
}

// HistorySize returns the number of completed submissions this session.
func (o *Orchestrator) HistorySize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history)
}
