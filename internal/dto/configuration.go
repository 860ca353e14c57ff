package dto

// ThresholdResponse exposes the active classifier confidence threshold.
type ThresholdResponse struct {
	Threshold float64 `json:"threshold"`
	Source    string  `json:"source"`
}

// UpdateThresholdRequest sets a new threshold in [0,1].
type UpdateThresholdRequest struct {
	Threshold *float64 `json:"threshold" validate:"required,gte=0,lte=1"`
}

// RoutingRuleRequest creates or replaces a routing rule.
type RoutingRuleRequest struct {
	Category          string   `json:"category" validate:"required"`
	Hostel            *string  `json:"hostel,omitempty" validate:"omitempty,max=120"`
	Building          *string  `json:"building,omitempty" validate:"omitempty,max=120"`
	OwnerRole         *string  `json:"owner_role,omitempty"`
	OwnerUserID       *string  `json:"owner_user_id,omitempty"`
	CollaboratorRoles []string `json:"collaborator_roles,omitempty" validate:"omitempty,max=5"`
	Active            *bool    `json:"active,omitempty"`
}

// SLARuleRequest upserts the active SLA rule for a priority.
type SLARuleRequest struct {
	Priority                 string `json:"priority" validate:"required"`
	AcknowledgeWithinMinutes int    `json:"acknowledge_within_minutes" validate:"required,min=1"`
	ResolveWithinMinutes     int    `json:"resolve_within_minutes" validate:"required,min=1,gtefield=AcknowledgeWithinMinutes"`
}
