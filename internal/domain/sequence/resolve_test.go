package sequence_test

import (
	"context"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
)

func TestNextByCode_PrefersOrganization(t *testing.T) {
	f := newFixture(t)
	orgA := id.New()
	f.store.AddOrganization(orgA, "Org A")

	f.create(t, func(s *sequence.Sequence) {
		s.Name = "Sales global"
		s.Code = "SO"
		s.Prefix = "G/"
	})
	f.create(t, func(s *sequence.Sequence) {
		s.Name = "Sales org A"
		s.Code = "SO"
		s.Prefix = "A/"
		s.OrganizationID = id.Ptr(orgA)
	})
	ctx := context.Background()

	got, found, err := f.svc.NextByCode(ctx, "SO", id.Ptr(orgA))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "A/1", got)

	// Without a hint the first candidate by name wins.
	got, found, err = f.svc.NextByCode(ctx, "SO", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "G/1", got)

	// The user's current organization acts as the hint.
	userCtx := appctx.WithUser(ctx, &appctx.UserContext{UserID: "u1", OrgID: orgA.String()})
	got, _, err = f.svc.NextByCode(userCtx, "SO", nil)
	require.NoError(t, err)
	assert.Equal(t, "A/2", got)

	// So does the request override.
	overrideCtx := appctx.WithSequenceOverrides(ctx, appctx.SequenceOverrides{OrgID: orgA.String()})
	got, _, err = f.svc.NextByCode(overrideCtx, "SO", nil)
	require.NoError(t, err)
	assert.Equal(t, "A/3", got)
}

func TestNextByCode_HidesOtherOrganizations(t *testing.T) {
	f := newFixture(t)
	orgA, orgB := id.New(), id.New()
	f.store.AddOrganization(orgA, "Org A")
	f.store.AddOrganization(orgB, "Org B")

	f.create(t, func(s *sequence.Sequence) {
		s.Code = "PO"
		s.OrganizationID = id.Ptr(orgB)
	})

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", OrgID: orgA.String()})
	_, found, err := f.svc.NextByCode(ctx, "PO", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNextByCode_NotFound(t *testing.T) {
	f := newFixture(t)
	f.create(t, func(s *sequence.Sequence) {
		s.Code = "OLD"
		s.Active = false
	})

	for _, code := range []string{"MISSING", "OLD"} {
		got, found, err := f.svc.NextByCode(context.Background(), code, nil)
		require.NoError(t, err, code)
		assert.False(t, found, code)
		assert.Empty(t, got, code)
	}
}

func TestNextByCode_InvalidOrganizationOverride(t *testing.T) {
	f := newFixture(t)
	ctx := appctx.WithSequenceOverrides(context.Background(), appctx.SequenceOverrides{OrgID: "not-a-uuid"})

	_, _, err := f.svc.NextByCode(ctx, "SO", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestDeprecatedLookups(t *testing.T) {
	f := newFixture(t)
	seq := f.create(t, func(s *sequence.Sequence) { s.Code = "SO" })
	ctx := context.Background()

	got, found, err := f.svc.GetID(ctx, seq.ID.String(), "id")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", got)

	got, found, err = f.svc.GetID(ctx, "SO", "code")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", got)

	got, found, err = f.svc.Get(ctx, "SO")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", got)

	_, _, err = f.svc.GetID(ctx, "garbage", "id")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestNextByID_Overrides(t *testing.T) {
	f := newFixture(t)
	seq := f.create(t, func(s *sequence.Sequence) {
		s.Prefix = "%(year)s-%(range_year)s-%(current_year)s/"
	})

	ctx := appctx.WithSequenceOverrides(context.Background(), appctx.SequenceOverrides{
		Date:      "2024-03-01",
		DateRange: "2023-07-01",
	})
	got, err := f.svc.NextByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-2023-2026/1", got)
}

func TestNextByID_TimeZone(t *testing.T) {
	f := newFixture(t)
	seq := f.create(t, func(s *sequence.Sequence) {
		s.Prefix = "%(current_h24)s/"
	})

	ctx := appctx.WithSequenceOverrides(context.Background(), appctx.SequenceOverrides{TimeZone: "Asia/Tokyo"})
	got, err := f.svc.NextByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "19/1", got)

	// The user's zone applies when the request has none.
	userCtx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", TimeZone: "America/New_York"})
	got, err = f.svc.NextByID(userCtx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "06/2", got)
}

func TestNextByID_InvalidOverridesFailBeforeAllocation(t *testing.T) {
	f := newFixture(t)
	seq := f.create(t, nil)

	for _, o := range []appctx.SequenceOverrides{
		{TimeZone: "Mars/Olympus"},
		{Date: "2024-13-40"},
		{DateRange: "yesterday"},
	} {
		ctx := appctx.WithSequenceOverrides(context.Background(), o)
		_, err := f.svc.NextByID(ctx, seq.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "%+v", o)
	}

	n, err := f.svc.NextByID(context.Background(), seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", n)
}
