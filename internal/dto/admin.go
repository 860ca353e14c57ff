package dto

// AssignComplaintRequest replaces the owner and collaborators.
type AssignComplaintRequest struct {
	OwnerUserID         string   `json:"owner_user_id" validate:"required"`
	CollaboratorUserIDs []string `json:"collaborator_user_ids,omitempty" validate:"omitempty,max=20"`
	Reason              string   `json:"reason" validate:"max=1000"`
}

// StatusChangeRequest moves a complaint through the lifecycle.
type StatusChangeRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

// EscalateRequest raises a manual escalation. Level defaults to RESOLVE_OVERDUE.
type EscalateRequest struct {
	Level             string  `json:"level"`
	Reason            string  `json:"reason" validate:"required,max=1000"`
	EscalatedToUserID *string `json:"escalated_to_user_id,omitempty"`
	EscalatedToRole   string  `json:"escalated_to_role"`
}

// ResolveRequest resolves a complaint with a public note.
type ResolveRequest struct {
	ResolutionNote string   `json:"resolution_note" validate:"required,max=5000"`
	AttachmentIDs  []string `json:"attachment_ids,omitempty" validate:"omitempty,max=10,dive,uuid"`
}

// CloseRequest closes a resolved complaint.
type CloseRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ReviewApproveRequest accepts the current routing of a complaint under review.
type ReviewApproveRequest struct {
	InternalNotes string `json:"internal_notes" validate:"max=2000"`
}

// ReviewEditRequest overrides classification and routing during manual review.
type ReviewEditRequest struct {
	Categories          []string `json:"categories" validate:"required,min=1,max=11"`
	PrimaryCategory     string   `json:"primary_category" validate:"required"`
	Priority            string   `json:"priority" validate:"required"`
	OwnerUserID         *string  `json:"owner_user_id,omitempty"`
	CollaboratorUserIDs []string `json:"collaborator_user_ids,omitempty" validate:"omitempty,max=20"`
	InternalNotes       string   `json:"internal_notes" validate:"max=2000"`
}
