package security

import (
	"context"

	"docseq/internal/core/apperror"
	"docseq/internal/domain/sequence"
)

// SequenceAccess authorizes reading (and thereby drawing numbers from)
// sequences: the caller needs sequence:read and, for organization-scoped
// sequences, access to that organization.
type SequenceAccess struct{}

var _ sequence.AccessChecker = SequenceAccess{}

// CheckRead implements sequence.AccessChecker.
func (SequenceAccess) CheckRead(ctx context.Context, seq *sequence.Sequence) error {
	scope := GetScope(ctx)
	if !scope.HasPermission(PermissionSequenceRead) {
		return apperror.NewForbidden("permission sequence:read required").
			WithDetail("permission", PermissionSequenceRead).
			WithDetail("sequence_id", seq.ID)
	}
	if seq.OrganizationID != nil && !scope.CanAccessOrg(seq.OrganizationID.String()) {
		return apperror.NewForbidden("sequence belongs to another organization").
			WithDetail("sequence_id", seq.ID).
			WithDetail("organization_id", *seq.OrganizationID)
	}
	return nil
}
