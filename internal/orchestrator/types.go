package orchestrator

import (
	"time"

	"github.com/clearlane/complianced/internal/compliance"
)

// Phase is the per-submission state. Document submissions pass through
// PARSING; structured submissions go straight to VALIDATING.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseParsing    Phase = "parsing"
	PhaseValidating Phase = "validating"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// Submission tracks one payment through the two-phase pipeline. Payment is
// populated as soon as phase 1 resolves, so a caller holding a failed
// submission can still see the parsed data when only phase 2 failed.
type Submission struct {
	ID        string                       `json:"id"`
	Phase     Phase                        `json:"phase"`
	Scheme    string                       `json:"scheme"`
	Payment   *compliance.PaymentData      `json:"payment,omitempty"`
	Result    *compliance.ValidationResult `json:"result,omitempty"`
	StartedAt time.Time                    `json:"started_at"`
	EndedAt   time.Time                    `json:"ended_at,omitempty"`
}

// BatchItem is the per-payment outcome of a batch submission.
type BatchItem struct {
	Index      int                          `json:"index"`
	Result     *compliance.ValidationResult `json:"result,omitempty"`
	Err        error                        `json:"-"`
	ErrMessage string                       `json:"error,omitempty"`
}
