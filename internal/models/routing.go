package models

import (
	"strings"
	"time"
)

// RoutingRule maps a category (optionally narrowed by location) to a default owner and collaborators.
type RoutingRule struct {
	ID                string    `db:"id" json:"id"`
	Category          Category  `db:"category" json:"category"`
	Hostel            *string   `db:"hostel" json:"hostel,omitempty"`
	Building          *string   `db:"building" json:"building,omitempty"`
	OwnerRole         *UserRole `db:"owner_role" json:"owner_role,omitempty"`
	OwnerUserID       *string   `db:"owner_user_id" json:"owner_user_id,omitempty"`
	CollaboratorRoles string    `db:"collaborator_roles" json:"collaborator_roles"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// CollaboratorRoleList splits the CSV role list, dropping blanks.
func (r RoutingRule) CollaboratorRoleList() []string {
	parts := strings.Split(r.CollaboratorRoles, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}

// SLARule defines deadlines for one priority.
type SLARule struct {
	ID                       string    `db:"id" json:"id"`
	Priority                 Priority  `db:"priority" json:"priority"`
	AcknowledgeWithinMinutes int       `db:"acknowledge_within_minutes" json:"acknowledge_within_minutes"`
	ResolveWithinMinutes     int       `db:"resolve_within_minutes" json:"resolve_within_minutes"`
	Active                   bool      `db:"active" json:"active"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// RoutingResolution is the outcome of resolving an owner for a complaint.
type RoutingResolution struct {
	Resolved        bool
	OwnerUserID     string
	CollaboratorIDs []string
	Reason          string
	RuleID          string
}

// Unresolved builds a failed resolution.
func Unresolved(reason string) RoutingResolution {
	return RoutingResolution{Reason: reason}
}
