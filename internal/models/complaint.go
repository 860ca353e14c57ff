package models

import (
	"strings"
	"time"
)

// ComplaintStatus is the lifecycle state of a complaint.
type ComplaintStatus string

const (
	StatusNew          ComplaintStatus = "NEW"
	StatusAcknowledged ComplaintStatus = "ACKNOWLEDGED"
	StatusInProgress   ComplaintStatus = "IN_PROGRESS"
	StatusNeedsInfo    ComplaintStatus = "NEEDS_INFO"
	StatusResolved     ComplaintStatus = "RESOLVED"
	StatusClosed       ComplaintStatus = "CLOSED"
	StatusReopened     ComplaintStatus = "REOPENED"
)

// AllStatuses lists every lifecycle state.
var AllStatuses = []ComplaintStatus{
	StatusNew, StatusAcknowledged, StatusInProgress, StatusNeedsInfo, StatusResolved, StatusClosed, StatusReopened,
}

// ParseComplaintStatus accepts a case-insensitive status token.
func ParseComplaintStatus(raw string) (ComplaintStatus, bool) {
	candidate := ComplaintStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range AllStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// Priority drives SLA deadlines.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// AllPriorities lists priorities from lowest to highest.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ParsePriority accepts a case-insensitive priority token.
func ParsePriority(raw string) (Priority, bool) {
	candidate := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	for _, p := range AllPriorities {
		if p == candidate {
			return p, true
		}
	}
	return "", false
}

// Category is a complaint department bucket.
type Category string

const (
	CategoryHostel         Category = "HOSTEL"
	CategoryElectrical     Category = "ELECTRICAL"
	CategoryInternet       Category = "INTERNET"
	CategorySanitation     Category = "SANITATION"
	CategoryClassroom      Category = "CLASSROOM"
	CategorySecurity       Category = "SECURITY"
	CategoryAdministration Category = "ADMINISTRATION"
	CategoryPlumbing       Category = "PLUMBING"
	CategoryHarassment     Category = "HARASSMENT"
	CategoryTransport      Category = "TRANSPORT"
	CategoryOthers         Category = "OTHERS"
)

// AllCategories lists the supported categories.
var AllCategories = []Category{
	CategoryHostel, CategoryElectrical, CategoryInternet, CategorySanitation, CategoryClassroom, CategorySecurity,
	CategoryAdministration, CategoryPlumbing, CategoryHarassment, CategoryTransport, CategoryOthers,
}

// ParseCategory accepts an exact (case-insensitive) category token.
func ParseCategory(raw string) (Category, bool) {
	candidate := Category(strings.ToUpper(strings.TrimSpace(raw)))
	for _, c := range AllCategories {
		if c == candidate {
			return c, true
		}
	}
	return "", false
}

// Complaint is the aggregate root. Categories and Assignments are owned children that are always
// replaced wholesale together with the parent row.
type Complaint struct {
	ID                 string          `db:"id" json:"id"`
	Code               string          `db:"code" json:"code"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	Title              string          `db:"title" json:"title"`
	Description        string          `db:"description" json:"description"`
	Hostel             *string         `db:"hostel" json:"hostel,omitempty"`
	Building           *string         `db:"building" json:"building,omitempty"`
	Room               *string         `db:"room" json:"room,omitempty"`
	PreferredVisitSlot *string         `db:"preferred_visit_slot" json:"preferred_visit_slot,omitempty"`
	Anonymous          bool            `db:"anonymous" json:"anonymous"`
	Status             ComplaintStatus `db:"status" json:"status"`
	Priority           Priority        `db:"priority" json:"priority"`
	NeedsReview        bool            `db:"needs_review" json:"needs_review"`
	ReviewReason       *string         `db:"review_reason" json:"review_reason,omitempty"`
	OwnerUserID        *string         `db:"owner_user_id" json:"owner_user_id,omitempty"`
	AcknowledgeDueAt   *time.Time      `db:"acknowledge_due_at" json:"acknowledge_due_at,omitempty"`
	ResolveDueAt       *time.Time      `db:"resolve_due_at" json:"resolve_due_at,omitempty"`
	ResolvedAt         *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	ClosedAt           *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
	ReopenedCount      int             `db:"reopened_count" json:"reopened_count"`
	FeedbackRating     *int            `db:"feedback_rating" json:"feedback_rating,omitempty"`
	FeedbackComment    *string         `db:"feedback_comment" json:"feedback_comment,omitempty"`
	FeedbackAt         *time.Time      `db:"feedback_at" json:"feedback_at,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`

	Categories  []ComplaintCategory   `db:"-" json:"categories"`
	Assignments []ComplaintAssignment `db:"-" json:"assignments"`
}

// PrimaryCategory returns the category flagged primary, if any.
func (c *Complaint) PrimaryCategory() (Category, bool) {
	for _, cat := range c.Categories {
		if cat.IsPrimary {
			return cat.Category, true
		}
	}
	return "", false
}

// MarkNeedsReview parks the complaint in the manual review queue. Review always clears routing.
func (c *Complaint) MarkNeedsReview(reason string) {
	c.NeedsReview = true
	c.ReviewReason = &reason
	c.ClearAssignments()
}

// ClearReview takes the complaint out of the review queue.
func (c *Complaint) ClearReview() {
	c.NeedsReview = false
	c.ReviewReason = nil
}

// ClearAssignments drops the owner and all collaborators.
func (c *Complaint) ClearAssignments() {
	c.OwnerUserID = nil
	c.Assignments = nil
}

// ReplaceAssignments installs owner plus collaborators, skipping duplicates and the owner itself.
func (c *Complaint) ReplaceAssignments(ownerID string, collaboratorIDs []string) {
	owner := ownerID
	c.OwnerUserID = &owner
	assignments := []ComplaintAssignment{{ComplaintID: c.ID, UserID: ownerID, Role: AssignmentOwner}}
	seen := map[string]struct{}{ownerID: {}}
	for _, id := range collaboratorIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		assignments = append(assignments, ComplaintAssignment{ComplaintID: c.ID, UserID: id, Role: AssignmentCollaborator})
	}
	c.Assignments = assignments
}

// IsAssigned reports whether userID owns or collaborates on the complaint.
func (c *Complaint) IsAssigned(userID string) bool {
	if c.OwnerUserID != nil && *c.OwnerUserID == userID {
		return true
	}
	for _, a := range c.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// ComplaintCategory links a complaint to one category.
type ComplaintCategory struct {
	ID          string   `db:"id" json:"id"`
	ComplaintID string   `db:"complaint_id" json:"-"`
	Category    Category `db:"category" json:"category"`
	IsPrimary   bool     `db:"is_primary" json:"is_primary"`
	Confidence  float64  `db:"confidence" json:"confidence"`
	Position    int      `db:"position" json:"-"`
}

// AssignmentRole distinguishes owner from collaborators.
type AssignmentRole string

const (
	AssignmentOwner        AssignmentRole = "OWNER"
	AssignmentCollaborator AssignmentRole = "COLLABORATOR"
)

// ComplaintAssignment links a user to a complaint.
type ComplaintAssignment struct {
	ID          string         `db:"id" json:"id"`
	ComplaintID string         `db:"complaint_id" json:"-"`
	UserID      string         `db:"user_id" json:"user_id"`
	Role        AssignmentRole `db:"role" json:"role"`
	Position    int            `db:"position" json:"-"`
}

// ComplaintFilter captures list criteria. Department widens AssignedTo to complaints owned by
// anyone in that department.
type ComplaintFilter struct {
	Status      *ComplaintStatus
	Priority    *Priority
	Category    *Category
	NeedsReview *bool
	CreatedBy   string
	AssignedTo  string
	Department  string
	Search      string
	Page        int
	PageSize    int
}

// ComplaintMessage is a conversation entry on a complaint. Internal messages are staff-only notes.
type ComplaintMessage struct {
	ID          string    `db:"id" json:"id"`
	ComplaintID string    `db:"complaint_id" json:"complaint_id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	Message     string    `db:"message" json:"message"`
	Internal    bool      `db:"internal" json:"internal"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
