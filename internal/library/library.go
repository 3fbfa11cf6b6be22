// Package library is the read-through cache of the authoritative extracted
// rule set.
//
// Load performs a total replace of local state, never an incremental merge:
// whatever generation the service holds becomes the whole snapshot, which is
// what keeps stale rules from accumulating across rulebook generations.
package library

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"go.uber.org/zap"
)

// Fetcher is the slice of the Compliance Service the library uses.
type Fetcher interface {
	FetchRulesLibrary(ctx context.Context) ([]compliance.Rule, error)
}

// Aggregate summarizes the current snapshot.
type Aggregate struct {
	Total      int                         `json:"total"`
	BySeverity map[compliance.Severity]int `json:"by_severity"`
	Categories int                         `json:"categories"`
	Schemes    int                         `json:"schemes"`
}

// Library caches the rule set fetched from the Compliance Service.
type Library struct {
	mu       sync.RWMutex
	rules    []compliance.Rule
	loadedAt time.Time

	api    Fetcher
	logger *zap.Logger
}

// New creates an empty library backed by the given service client.
func New(api Fetcher, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		api:    api,
		logger: logger.Named("library"),
	}
}

// Load fetches the full authoritative rule set and replaces the snapshot.
// On failure the prior snapshot is kept untouched; stale-but-available is
// preferred over empty.
func (l *Library) Load(ctx context.Context) error {
	rules, err := l.api.FetchRulesLibrary(ctx)
	if err != nil {
		l.logger.Warn("rules library load failed, keeping prior snapshot", zap.Error(err))
		return err
	}

	l.mu.Lock()
	l.rules = rules
	l.loadedAt = time.Now().UTC()
	l.mu.Unlock()

	l.logger.Info("rules library loaded", zap.Int("rules", len(rules)))
	return nil
}

// Invalidate drops the cached rules for one scheme. The registry calls this
// when the scheme's rulebook generation advances, so no prior-generation
// rule survives until the next Load.
func (l *Library) Invalidate(scheme string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.rules[:0]
	for _, rule := range l.rules {
		if rule.Scheme != scheme {
			kept = append(kept, rule)
		}
	}
	dropped := len(l.rules) - len(kept)
	l.rules = kept

	if dropped > 0 {
		l.logger.Info("invalidated scheme rules",
			zap.String("scheme", scheme),
			zap.Int("dropped", dropped))
	}
}

// Query returns a lazy, restartable sequence of rules in source order.
// Empty scheme or severity means no filter on that dimension. The sequence
// iterates over the snapshot taken at call time.
func (l *Library) Query(scheme string, severity compliance.Severity) iter.Seq[compliance.Rule] {
	snapshot := l.Snapshot()
	return func(yield func(compliance.Rule) bool) {
		for _, rule := range snapshot {
			if scheme != "" && rule.Scheme != scheme {
				continue
			}
			if severity != "" && rule.Severity != severity {
				continue
			}
			if !yield(rule) {
				return
			}
		}
	}
}

// Aggregate counts rules by severity and the distinct category and scheme
// cardinalities of the current snapshot.
func (l *Library) Aggregate() Aggregate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	agg := Aggregate{
		Total:      len(l.rules),
		BySeverity: make(map[compliance.Severity]int),
	}
	categories := make(map[string]struct{})
	schemes := make(map[string]struct{})
	for _, rule := range l.rules {
		agg.BySeverity[rule.Severity]++
		if rule.Category != "" {
			categories[rule.Category] = struct{}{}
		}
		if rule.Scheme != "" {
			schemes[rule.Scheme] = struct{}{}
		}
	}
	agg.Categories = len(categories)
	agg.Schemes = len(schemes)
	return agg
}

// Snapshot returns a copy of the current rule set in source order.
func (l *Library) Snapshot() []compliance.Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]compliance.Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Size returns the number of cached rules.
func (l *Library) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rules)
}

// LoadedAt returns when the snapshot was last replaced, zero if never.
func (l *Library) LoadedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedAt
}
