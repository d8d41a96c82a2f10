package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
)

func TestSequenceAccess_CheckRead(t *testing.T) {
	orgA, orgB := id.New(), id.New()

	shared := sequence.NewSequence("Shared", "SH")
	scoped := sequence.NewSequence("Scoped", "SC")
	scoped.OrganizationID = &orgA

	reader := &appctx.UserContext{
		UserID:      "u1",
		OrgID:       orgB.String(),
		Permissions: []string{string(PermissionSequenceRead)},
	}
	readerA := &appctx.UserContext{
		UserID:      "u2",
		OrgIDs:      []string{orgA.String()},
		Permissions: []string{string(PermissionSequenceRead)},
	}

	tests := []struct {
		name    string
		user    *appctx.UserContext
		seq     *sequence.Sequence
		allowed bool
	}{
		{"internal call", nil, scoped, true},
		{"admin", &appctx.UserContext{UserID: "root", IsAdmin: true}, scoped, true},
		{"no permission", &appctx.UserContext{UserID: "u3"}, shared, false},
		{"shared sequence", reader, shared, true},
		{"other organization", reader, scoped, false},
		{"allowed organization", readerA, scoped, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.user != nil {
				ctx = appctx.WithUser(ctx, tt.user)
			}

			err := SequenceAccess{}.CheckRead(ctx, tt.seq)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.IsForbidden(err))
		})
	}
}

func TestGetScope_PrefersStoredScope(t *testing.T) {
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1"})
	assert.False(t, GetScope(ctx).HasPermission(PermissionSequenceWrite))

	ctx = WithScope(ctx, &AccessScope{UserID: "u1", Permissions: []Permission{PermissionSequenceWrite}})
	assert.True(t, GetScope(ctx).HasPermission(PermissionSequenceWrite))
	assert.Error(t, GetScope(ctx).RequirePermission(PermissionSequenceRead))
}

func TestNewAccessScope_Roles(t *testing.T) {
	viewer := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "v", Roles: []string{string(RoleViewer)}})
	scope := NewAccessScope(viewer)
	assert.True(t, scope.HasPermission(PermissionSequenceRead))
	assert.False(t, scope.HasPermission(PermissionSequenceWrite))
	assert.False(t, scope.IsAdmin)

	admin := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "a", Roles: []string{string(RoleAdmin)}})
	scope = NewAccessScope(admin)
	assert.True(t, scope.IsAdmin)
	assert.True(t, scope.HasPermission(PermissionSequenceWrite))
	assert.True(t, scope.CanAccessOrg("any"))
}
