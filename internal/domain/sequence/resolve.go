package sequence

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/pkg/logger"
)

// NextByID draws the next formatted number from the sequence.
func (s *Service) NextByID(ctx context.Context, sequenceID id.ID) (string, error) {
	var number string
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.repo.GetByID(ctx, sequenceID)
		if err != nil {
			return err
		}
		if err := s.access.CheckRead(ctx, seq); err != nil {
			return err
		}
		number, err = s.next(ctx, seq)
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// NextByCode draws the next number from the best active sequence with the
// given code. found is false when no candidate is visible to the caller.
//
// Among candidates, the one belonging to the preferred organization wins:
// orgHint, then the request override, then the caller's current
// organization. Otherwise the first candidate ordered by name is used.
func (s *Service) NextByCode(ctx context.Context, code string, orgHint *id.ID) (string, bool, error) {
	preferred, err := s.preferredOrg(ctx, orgHint)
	if err != nil {
		return "", false, err
	}

	var (
		number string
		found  bool
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		orgs, err := s.directory.VisibleOrganizations(ctx)
		if err != nil {
			return err
		}
		candidates, err := s.repo.FindByCode(ctx, code, orgs)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			logger.Debug(ctx, "no sequence found for code", "code", code)
			return nil
		}

		seq := pickCandidate(candidates, preferred)
		if err := s.access.CheckRead(ctx, seq); err != nil {
			return err
		}
		number, err = s.next(ctx, seq)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return number, found, nil
}

// GetID draws a number by ID ("id") or by code (any other value of by).
//
// Deprecated: use NextByID or NextByCode.
func (s *Service) GetID(ctx context.Context, codeOrID string, by string) (string, bool, error) {
	logger.Warn(ctx, "GetID is deprecated, use NextByID or NextByCode", "by", by)
	if by == "id" {
		sequenceID, err := id.Parse(codeOrID)
		if err != nil {
			return "", false, apperror.NewValidation("invalid sequence id").WithDetail("id", codeOrID)
		}
		number, err := s.NextByID(ctx, sequenceID)
		if err != nil {
			return "", false, err
		}
		return number, true, nil
	}
	return s.NextByCode(ctx, codeOrID, nil)
}

// Get draws a number by code.
//
// Deprecated: use NextByCode.
func (s *Service) Get(ctx context.Context, code string) (string, bool, error) {
	logger.Warn(ctx, "Get is deprecated, use NextByCode", "code", code)
	return s.NextByCode(ctx, code, nil)
}

func pickCandidate(candidates []*Sequence, preferred *id.ID) *Sequence {
	if preferred != nil {
		for _, c := range candidates {
			if id.EqualPtr(c.OrganizationID, preferred) {
				return c
			}
		}
	}
	return candidates[0]
}

func (s *Service) preferredOrg(ctx context.Context, orgHint *id.ID) (*id.ID, error) {
	if orgHint != nil {
		return orgHint, nil
	}
	if raw := appctx.GetSequenceOverrides(ctx).OrgID; raw != "" {
		orgID, err := id.Parse(raw)
		if err != nil {
			return nil, apperror.NewValidation("invalid organization override").WithDetail("organizationId", raw)
		}
		return &orgID, nil
	}
	orgID, err := id.ParseOptional(appctx.GetOrgID(ctx))
	if err != nil {
		// Malformed claims are ignored.
		logger.Warn(ctx, "ignoring invalid organization in user context", "error", err)
		return nil, nil
	}
	return orgID, nil
}

// next runs the allocation pipeline for candidate inside the caller's
// transaction. The strategy comes from the row read under a shared lock,
// which configuration edits must wait for.
func (s *Service) next(ctx context.Context, candidate *Sequence) (number string, err error) {
	ctx, span := tracer.Start(ctx, "sequence.Next")
	span.SetAttributes(
		attribute.String("sequence.id", candidate.ID.String()),
		attribute.String("sequence.code", candidate.Code),
	)
	strategy := candidate.Implementation
	start := time.Now()
	defer func() {
		s.metrics.ObserveAllocation(strategy, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dates, err := s.dates(ctx)
	if err != nil {
		return "", err
	}
	if err := candidate.checkTemplate(); err != nil {
		return "", err
	}

	// Range creation locks the parent exclusively, so it runs before the
	// shared lock is taken.
	var dr *DateRange
	if candidate.UseDateRange {
		if dr, err = s.ResolveDateRange(ctx, candidate, dates.Effective); err != nil {
			return "", err
		}
	}

	seq, err := s.repo.LockSequenceShared(ctx, candidate.ID)
	if err != nil {
		return "", err
	}
	// The date range mode may have changed since candidate was read.
	switch {
	case !seq.UseDateRange:
		dr = nil
	case dr == nil:
		if dr, err = s.ResolveDateRange(ctx, seq, dates.Effective); err != nil {
			return "", err
		}
	}
	strategy = seq.Implementation
	span.SetAttributes(attribute.String("sequence.implementation", strategy.String()))

	key := SequenceKey(seq.ID)
	if dr != nil {
		key = DateRangeKey(seq.ID, dr.ID)
		dates.Range = inLocation(dr.DateFrom, dates.Now.Location())
	}

	n, err := s.allocate(ctx, seq, key)
	if err != nil {
		return "", err
	}
	return seq.render(n, dates)
}

// dates builds the three formatting baselines from request overrides.
func (s *Service) dates(ctx context.Context) (numerator.Dates, error) {
	o := appctx.GetSequenceOverrides(ctx)

	loc := s.location
	tz := o.TimeZone
	if tz == "" {
		if u := appctx.GetUser(ctx); u != nil {
			tz = u.TimeZone
		}
	}
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return numerator.Dates{}, apperror.NewValidation("unknown time zone").WithDetail("timeZone", tz)
		}
		loc = l
	}

	dates := numerator.NewDates(s.clock(), loc)
	if o.Date != "" {
		d, err := numerator.ParseDate(o.Date, loc)
		if err != nil {
			return numerator.Dates{}, apperror.NewValidation("invalid sequence date").WithDetail("date", o.Date)
		}
		dates.Effective = d
	}
	if o.DateRange != "" {
		d, err := numerator.ParseDate(o.DateRange, loc)
		if err != nil {
			return numerator.Dates{}, apperror.NewValidation("invalid sequence range date").WithDetail("dateRange", o.DateRange)
		}
		dates.Range = d
	}
	return dates, nil
}

func inLocation(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
