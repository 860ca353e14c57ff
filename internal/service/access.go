package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

// Actor is the authenticated caller of a complaint operation.
type Actor struct {
	ID         string
	Role       models.UserRole
	Department string
}

// IsStaff reports whether the actor works complaints rather than filing them.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

var (
	assignRoles = []models.UserRole{models.RoleResolver, models.RoleDeptAdmin, models.RoleSuperAdmin}
	statusRoles = []models.UserRole{models.RoleResolver, models.RoleDeptAdmin, models.RoleSuperAdmin, models.RoleReviewer}
	reviewRoles = []models.UserRole{models.RoleReviewer, models.RoleDeptAdmin, models.RoleSuperAdmin}
)

func requireRole(actor Actor, allowed ...models.UserRole) error {
	for _, role := range allowed {
		if actor.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "role not allowed to perform this action")
}

// accessPolicy decides which complaints an actor can see.
type accessPolicy struct {
	users userDirectory
}

// canView: super admins see everything, reporters see their own complaints, reviewers see the review
// queue, other staff see complaints they are assigned to or whose owner shares their department.
func (p accessPolicy) canView(ctx context.Context, actor Actor, complaint *models.Complaint) (bool, error) {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return true, nil
	case models.RoleUser:
		return complaint.CreatedBy == actor.ID, nil
	case models.RoleReviewer:
		return complaint.NeedsReview, nil
	case models.RoleResolver, models.RoleDeptAdmin:
		if complaint.IsAssigned(actor.ID) {
			return true, nil
		}
		return p.sharesOwnerDepartment(ctx, actor, complaint)
	}
	return false, nil
}

func (p accessPolicy) assertCanView(ctx context.Context, actor Actor, complaint *models.Complaint) error {
	ok, err := p.canView(ctx, actor, complaint)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this complaint")
	}
	return nil
}

func (p accessPolicy) sharesOwnerDepartment(ctx context.Context, actor Actor, complaint *models.Complaint) (bool, error) {
	department := strings.TrimSpace(actor.Department)
	if department == "" || complaint.OwnerUserID == nil {
		return false, nil
	}
	owner, err := p.users.FindByID(ctx, *complaint.OwnerUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load complaint owner")
	}
	return owner.Department != nil && strings.EqualFold(strings.TrimSpace(*owner.Department), department), nil
}

// scopeFilter narrows a list query to what the actor may see.
func scopeFilter(actor Actor, filter models.ComplaintFilter) models.ComplaintFilter {
	switch actor.Role {
	case models.RoleSuperAdmin:
	case models.RoleUser:
		filter.CreatedBy = actor.ID
	case models.RoleReviewer:
		needsReview := true
		filter.NeedsReview = &needsReview
	default:
		filter.AssignedTo = actor.ID
		filter.Department = strings.TrimSpace(actor.Department)
	}
	return filter
}
