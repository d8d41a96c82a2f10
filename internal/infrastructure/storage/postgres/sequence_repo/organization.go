package sequence_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/postgres"
)

const organizationTable = "organizations"

// Organization owns organization-scoped sequences.
type Organization struct {
	ID        id.ID     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// OrganizationRepo implements sequence.Directory over the organizations table.
type OrganizationRepo struct {
	txManager *postgres.TxManager
}

var _ sequence.Directory = (*OrganizationRepo)(nil)

// NewOrganizationRepo creates a new organization repository.
func NewOrganizationRepo(txManager *postgres.TxManager) *OrganizationRepo {
	return &OrganizationRepo{txManager: txManager}
}

func (r *OrganizationRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts an organization.
func (r *OrganizationRepo) Create(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{ID: id.New(), Name: name, CreatedAt: time.Now().UTC()}
	sql, args, err := r.builder().
		Insert(organizationTable).
		SetMap(postgres.StructToMap(org)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("insert organization: %w", err), "organization", org.ID)
	}
	return org, nil
}

// List returns all organizations ordered by name.
func (r *OrganizationRepo) List(ctx context.Context) ([]Organization, error) {
	sql, args, err := r.builder().
		Select("id", "name", "created_at").
		From(organizationTable).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var orgs []Organization
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &orgs, sql, args...); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

// VisibleOrganizations returns every organization for admins and
// unauthenticated calls, otherwise the user's current and allowed ones.
func (r *OrganizationRepo) VisibleOrganizations(ctx context.Context) ([]id.ID, error) {
	q, ok := r.visibleQuery(appctx.GetUser(ctx))
	if !ok {
		return nil, nil
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("visible organizations: %w", err)
	}
	return ids, nil
}

// visibleQuery returns false when the user can see no organization at all.
func (r *OrganizationRepo) visibleQuery(user *appctx.UserContext) (squirrel.SelectBuilder, bool) {
	q := r.builder().
		Select("id").
		From(organizationTable).
		OrderBy("id")
	if user == nil || user.IsAdmin {
		return q, true
	}

	var allowed []id.ID
	for _, raw := range append([]string{user.OrgID}, user.OrgIDs...) {
		if orgID, err := id.Parse(raw); err == nil {
			allowed = append(allowed, orgID)
		}
	}
	if len(allowed) == 0 {
		return q, false
	}
	return q.Where(squirrel.Eq{"id": allowed}), true
}
