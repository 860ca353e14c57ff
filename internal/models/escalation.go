package models

import (
	"strings"
	"time"
)

// EscalationLevel identifies which deadline was breached.
type EscalationLevel string

const (
	EscalationAcknowledgeOverdue EscalationLevel = "ACKNOWLEDGE_OVERDUE"
	EscalationResolveOverdue     EscalationLevel = "RESOLVE_OVERDUE"
)

// ParseEscalationLevel accepts a case-insensitive level token.
func ParseEscalationLevel(raw string) (EscalationLevel, bool) {
	switch EscalationLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case EscalationAcknowledgeOverdue:
		return EscalationAcknowledgeOverdue, true
	case EscalationResolveOverdue:
		return EscalationResolveOverdue, true
	}
	return "", false
}

// Escalation is raised when an SLA deadline passes, or manually by staff.
type Escalation struct {
	ID                string          `db:"id" json:"id"`
	ComplaintID       string          `db:"complaint_id" json:"complaint_id"`
	Level             EscalationLevel `db:"level" json:"level"`
	Reason            string          `db:"reason" json:"reason"`
	EscalatedToUserID *string         `db:"escalated_to_user_id" json:"escalated_to_user_id,omitempty"`
	EscalatedToRole   *UserRole       `db:"escalated_to_role" json:"escalated_to_role,omitempty"`
	Automatic         bool            `db:"automatic" json:"automatic"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
