// Package stats derives session statistics from history and the rules
// library, and merges externally reported aggregates on top.
package stats

import (
	"context"
	"sync"

	"github.com/clearlane/complianced/internal/compliance"
	"go.uber.org/zap"
)

// Recompute derives the four counters from the given history and library
// size. It is pure: same inputs, same output, no state touched.
func Recompute(history []*compliance.ValidationResult, librarySize int) compliance.SessionStatistics {
	s := compliance.SessionStatistics{
		TotalProcessed:   len(history),
		RulesLibrarySize: librarySize,
	}
	for _, result := range history {
		switch result.Status {
		case compliance.StatusCompliant:
			s.Compliant++
		case compliance.StatusNonCompliant:
			s.NonCompliant++
		}
	}
	return s
}

// Merge overlays an external report onto locally derived statistics. Every
// field present in the report overrides the local value; absent fields keep
// it. Nothing is ever recomputed from report values.
func Merge(local compliance.SessionStatistics, report *compliance.StatisticsReport) compliance.SessionStatistics {
	if report == nil {
		return local
	}
	if report.TotalProcessed != nil {
		local.TotalProcessed = *report.TotalProcessed
	}
	if report.Compliant != nil {
		local.Compliant = *report.Compliant
	}
	if report.NonCompliant != nil {
		local.NonCompliant = *report.NonCompliant
	}
	if report.RulesLibrarySize != nil {
		local.RulesLibrarySize = *report.RulesLibrarySize
	}
	if report.AIMode != nil {
		local.AIMode = *report.AIMode
	}
	if report.CostSavings != nil {
		local.CostSavings = *report.CostSavings
	}
	return local
}

// Fetcher is the slice of the Compliance Service the aggregator uses.
type Fetcher interface {
	FetchStatistics(ctx context.Context) (*compliance.StatisticsReport, error)
}

// Aggregator caches the latest locally derived statistics and the last
// successfully fetched external report; the published view is always the
// merge of the two.
type Aggregator struct {
	mu     sync.RWMutex
	local  compliance.SessionStatistics
	report *compliance.StatisticsReport

	api    Fetcher
	logger *zap.Logger
}

// New creates an aggregator. api may be nil when no external report source
// is wired.
func New(api Fetcher, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		api:    api,
		logger: logger.Named("stats"),
	}
}

// Update recomputes local statistics from the given inputs and returns the
// merged view.
func (a *Aggregator) Update(history []*compliance.ValidationResult, librarySize int) compliance.SessionStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.local = Recompute(history, librarySize)
	return Merge(a.local, a.report)
}

// RefreshReport fetches the external aggregate report. On failure the prior
// report is kept; stale-but-available beats blocking.
func (a *Aggregator) RefreshReport(ctx context.Context) error {
	if a.api == nil {
		return nil
	}
	report, err := a.api.FetchStatistics(ctx)
	if err != nil {
		a.logger.Warn("statistics refresh failed, keeping prior report", zap.Error(err))
		return err
	}

	a.mu.Lock()
	a.report = report
	a.mu.Unlock()
	return nil
}

// Current returns the merged statistics view.
func (a *Aggregator) Current() compliance.SessionStatistics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Merge(a.local, a.report)
}
