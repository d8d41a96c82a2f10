// Package security provides authorization and access control.
package security

import (
	"context"
	"fmt"
	"slices"

	"docseq/internal/core/apperror"
	appctx "docseq/internal/core/context"
)

// Permission defines available permissions in the system.
type Permission string

const (
	PermissionSequenceRead  Permission = "sequence:read"
	PermissionSequenceWrite Permission = "sequence:write"
)

// Role defines a set of permissions.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// AccessScope defines the boundaries of data visibility for current request.
type AccessScope struct {
	// UserID is the authenticated user. Empty for internal calls.
	UserID string

	// IsAdmin bypasses organization filtering
	IsAdmin bool

	// CurrentOrgID is the organization the user works in.
	CurrentOrgID string

	// AllowedOrgIDs limits access to specific organizations.
	// Empty = no organization access (unless IsAdmin).
	AllowedOrgIDs []string

	Permissions []Permission
}

// NewAccessScope creates AccessScope from context.
func NewAccessScope(ctx context.Context) *AccessScope {
	user := appctx.GetUser(ctx)
	if user == nil {
		return &AccessScope{}
	}

	perms := make([]Permission, 0, len(user.Permissions)+1)
	for _, p := range user.Permissions {
		perms = append(perms, Permission(p))
	}
	// Viewers may draw numbers.
	if appctx.HasRole(ctx, string(RoleViewer)) && !slices.Contains(perms, PermissionSequenceRead) {
		perms = append(perms, PermissionSequenceRead)
	}

	return &AccessScope{
		UserID:        user.UserID,
		IsAdmin:       user.IsAdmin || appctx.HasRole(ctx, string(RoleAdmin)),
		CurrentOrgID:  user.OrgID,
		AllowedOrgIDs: user.OrgIDs,
		Permissions:   perms,
	}
}

// Internal reports whether the scope belongs to a call made without an
// authenticated user (CLI, background jobs).
func (s *AccessScope) Internal() bool {
	return s.UserID == ""
}

// CanAccessOrg checks if user can access organization.
func (s *AccessScope) CanAccessOrg(orgID string) bool {
	if s.IsAdmin || s.Internal() {
		return true
	}
	if orgID != "" && orgID == s.CurrentOrgID {
		return true
	}
	return slices.Contains(s.AllowedOrgIDs, orgID)
}

// HasPermission checks if user has permission.
func (s *AccessScope) HasPermission(perm Permission) bool {
	if s.IsAdmin || s.Internal() {
		return true
	}
	return slices.Contains(s.Permissions, perm)
}

// RequirePermission returns error if permission is missing.
func (s *AccessScope) RequirePermission(perm Permission) error {
	if !s.HasPermission(perm) {
		return apperror.NewForbidden(
			fmt.Sprintf("permission %s required", perm),
		).WithDetail("permission", perm)
	}
	return nil
}
