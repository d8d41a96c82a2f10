package sequence

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"docseq/internal/core/apperror"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/core/tx"
)

var tracer = otel.Tracer("docseq/sequence")

// Entity names used in errors and audit records.
const (
	EntitySequence  = "sequence"
	EntityDateRange = "sequence_date_range"
)

// Config wires the service to its collaborators.
type Config struct {
	Repo      Repository
	Counters  CounterStore
	TxManager tx.Manager
	Access    AccessChecker
	Directory Directory

	// Optional collaborators.
	Audit   AuditLogger
	Metrics Metrics

	// LockMode for gap-free allocation (default LockWait).
	LockMode LockMode
	// Location used for "now" when the caller has no time zone.
	Location *time.Location
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service implements number generation and sequence administration.
type Service struct {
	repo      Repository
	counters  CounterStore
	txm       tx.Manager
	access    AccessChecker
	directory Directory
	audit     AuditLogger
	metrics   Metrics
	lockMode  LockMode
	location  *time.Location
	clock     func() time.Time
}

// NewService creates a sequence service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:      cfg.Repo,
		counters:  cfg.Counters,
		txm:       cfg.TxManager,
		access:    cfg.Access,
		directory: cfg.Directory,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		lockMode:  cfg.LockMode,
		location:  cfg.Location,
		clock:     cfg.Clock,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.access == nil {
		s.access = AllowAll{}
	}
	return s
}

// Ensure compile-time interface compliance.
var _ numerator.Generator = (*Service)(nil)

// AllowAll grants read access to every sequence.
// It is meant for trusted callers such as the command line tool.
type AllowAll struct{}

// CheckRead implements AccessChecker.
func (AllowAll) CheckRead(context.Context, *Sequence) error { return nil }

// GetByID returns a sequence the caller may read.
func (s *Service) GetByID(ctx context.Context, sequenceID id.ID) (*Sequence, error) {
	seq, err := s.repo.GetByID(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckRead(ctx, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

// List returns all sequences the caller may read.
func (s *Service) List(ctx context.Context) ([]*Sequence, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]*Sequence, 0, len(all))
	for _, seq := range all {
		if err := s.access.CheckRead(ctx, seq); err != nil {
			if apperror.IsForbidden(err) {
				continue
			}
			return nil, err
		}
		visible = append(visible, seq)
	}
	return visible, nil
}

func (s *Service) logChange(ctx context.Context, entity string, entityID id.ID, action string, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.LogChange(ctx, entity, entityID, action, changes)
}
