// Package registry owns per-scheme rulebook metadata and the upload/replace/
// delete lifecycle.
//
// At most one live rulebook exists per scheme. An upload atomically replaces
// the prior entry and starts a new generation; the prior generation's rules
// are invalidated in the Rules Library as part of the same operation.
// Deleting a rulebook removes the registry entry only — the library is
// independently authoritative and must be refreshed explicitly by the
// caller. That asymmetry is deliberate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/complianceapi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no rulebook is registered for a scheme.
var ErrNotFound = errors.New("no rulebook registered for scheme")

// allowedExtensions are the rulebook document formats accepted before any
// network round trip.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
}

// ServiceAPI is the slice of the Compliance Service the registry uses.
type ServiceAPI interface {
	UploadRulebook(ctx context.Context, scheme, filename string, file []byte) (*complianceapi.UploadResult, error)
	DeleteRulebook(ctx context.Context, scheme string) error
	FetchRulebooks(ctx context.Context) (map[string]compliance.Rulebook, error)
}

// Invalidator receives cascade invalidations when a scheme's generation
// advances.
type Invalidator interface {
	Invalidate(scheme string)
}

// Registry tracks the current rulebook per scheme.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]compliance.Rulebook

	api     ServiceAPI
	library Invalidator
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an empty registry backed by the given service client. library
// may be nil when no cascade target exists.
func New(api ServiceAPI, library Invalidator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]compliance.Rulebook),
		api:     api,
		library: library,
		logger:  logger.Named("registry"),
		now:     time.Now,
	}
}

// ValidateExtension checks a rulebook filename against the allowed formats.
// A disallowed extension fails locally; no network call is made.
func ValidateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return &compliance.MalformedInputError{
			Field:  "filename",
			Reason: fmt.Sprintf("unsupported rulebook format %q (allowed: pdf, docx)", ext),
		}
	}
	return nil
}

// Upload sends a rulebook to the Compliance Service and replaces any
// existing entry for the scheme. The stored entry carries a fresh
// generation handle, and the prior generation's rules are invalidated in
// the Rules Library.
func (r *Registry) Upload(ctx context.Context, scheme, filename string, file []byte) (compliance.Rulebook, error) {
	if scheme == "" {
		return compliance.Rulebook{}, &compliance.MalformedInputError{Field: "scheme", Reason: "scheme is required"}
	}
	if err := ValidateExtension(filename); err != nil {
		return compliance.Rulebook{}, err
	}

	result, err := r.api.UploadRulebook(ctx, scheme, filename, file)
	if err != nil {
		return compliance.Rulebook{}, err
	}

	entry := compliance.Rulebook{
		Scheme:     scheme,
		Filename:   result.Filename,
		PageCount:  result.Pages,
		TextLength: result.TextLength,
		UploadDate: r.now().UTC(),
		Summary:    result.Summary,
		Generation: uuid.NewString(),
	}

	r.mu.Lock()
	prior, replaced := r.entries[scheme]
	r.entries[scheme] = entry
	r.mu.Unlock()

	if r.library != nil {
		r.library.Invalidate(scheme)
	}

	fields := []zap.Field{
		zap.String("scheme", scheme),
		zap.String("filename", entry.Filename),
		zap.String("generation", entry.Generation),
		zap.Int("rules_extracted", result.RulesExtracted),
	}
	if replaced {
		fields = append(fields, zap.String("replaced_generation", prior.Generation))
	}
	r.logger.Info("rulebook registered", fields...)

	return entry, nil
}

// Get returns the current rulebook for a scheme.
func (r *Registry) Get(scheme string) (compliance.Rulebook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[scheme]
	if !ok {
		return compliance.Rulebook{}, fmt.Errorf("%w: %s", ErrNotFound, scheme)
	}
	return entry, nil
}

// List returns a snapshot of all registered rulebooks keyed by scheme.
func (r *Registry) List() map[string]compliance.Rulebook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]compliance.Rulebook, len(r.entries))
	for scheme, entry := range r.entries {
		out[scheme] = entry
	}
	return out
}

// Delete removes the rulebook for a scheme remotely and locally. It does not
// cascade into the Rules Library; callers refresh the library explicitly
// when they need it authoritative again.
func (r *Registry) Delete(ctx context.Context, scheme string) error {
	r.mu.RLock()
	_, ok := r.entries[scheme]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, scheme)
	}

	if err := r.api.DeleteRulebook(ctx, scheme); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.entries, scheme)
	r.mu.Unlock()

	r.logger.Info("rulebook deleted", zap.String("scheme", scheme))
	return nil
}

// Refresh replaces the local snapshot with the service's rulebook listing.
// A fetched entry keeps its existing local generation when the filename is
// unchanged, so a refresh does not spuriously advance generations.
func (r *Registry) Refresh(ctx context.Context) error {
	fetched, err := r.api.FetchRulebooks(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]compliance.Rulebook, len(fetched))
	for scheme, entry := range fetched {
		if prior, ok := r.entries[scheme]; ok && prior.Filename == entry.Filename {
			entry.Generation = prior.Generation
		} else {
			entry.Generation = uuid.NewString()
		}
		next[scheme] = entry
	}
	r.entries = next
	return nil
}

// Size returns the number of registered rulebooks.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
