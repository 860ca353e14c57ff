package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

// AdminComplaintService implements the staff commands that move complaints through the workflow.
type AdminComplaintService struct {
	complaints *ComplaintService
	users      userDirectory
	sla        *SLAService
	timeline   *TimelineService
	metrics    *MetricsService
	logger     *zap.Logger
	validator  *validator.Validate
}

// NewAdminComplaintService constructs the service on top of the complaint service's loading and locking.
func NewAdminComplaintService(complaints *ComplaintService, users userDirectory, sla *SLAService, timeline *TimelineService, metrics *MetricsService, logger *zap.Logger) *AdminComplaintService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminComplaintService{
		complaints: complaints,
		users:      users,
		sla:        sla,
		timeline:   timeline,
		metrics:    metrics,
		logger:     logger,
		validator:  validator.New(),
	}
}

// Assign replaces the owner and collaborators and takes the complaint out of manual review.
func (s *AdminComplaintService) Assign(ctx context.Context, actor Actor, code string, req dto.AssignComplaintRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, assignRoles...); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUsers(ctx, &req.OwnerUserID, req.CollaboratorUserIDs); err != nil {
		return nil, err
	}

	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		previous := deref(c.OwnerUserID)
		c.ReplaceAssignments(req.OwnerUserID, req.CollaboratorUserIDs)
		c.ClearReview()
		detail := strings.TrimSpace(req.Reason)
		if detail == "" {
			detail = "Assignment updated"
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineAssigned, previous, req.OwnerUserID, actor.idPtr(), detail)
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// ChangeStatus applies a validated lifecycle transition. The comment doubles as the resolution note.
func (s *AdminComplaintService) ChangeStatus(ctx context.Context, actor Actor, code string, req dto.StatusChangeRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, statusRoles...); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		hasResolution := strings.TrimSpace(req.Comment) != "" || c.ResolvedAt != nil
		if err := ValidateStatusTransition(c.Status, target, hasResolution); err != nil {
			return err
		}
		if c.Status == target {
			return nil
		}
		oldStatus := c.Status
		now := s.complaints.now()
		c.Status = target
		switch target {
		case models.StatusResolved:
			if c.ResolvedAt == nil {
				c.ResolvedAt = &now
			}
		case models.StatusClosed:
			c.ClosedAt = &now
		case models.StatusReopened:
			c.ReopenedCount++
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineStatusChanged, string(oldStatus), string(target), actor.idPtr(), req.Comment)
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// Escalate raises a manual escalation, optionally aimed at a user or role.
func (s *AdminComplaintService) Escalate(ctx context.Context, actor Actor, code string, req dto.EscalateRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, assignRoles...); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid escalation payload")
	}
	level := models.EscalationResolveOverdue
	if strings.TrimSpace(req.Level) != "" {
		parsed, ok := models.ParseEscalationLevel(req.Level)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown escalation level %q", req.Level))
		}
		level = parsed
	}
	escalation := &models.Escalation{Level: level, Reason: strings.TrimSpace(req.Reason)}
	if target := trimToNil(req.EscalatedToUserID); target != nil {
		if err := s.ensureUsers(ctx, target, nil); err != nil {
			return nil, err
		}
		escalation.EscalatedToUserID = target
	}
	if strings.TrimSpace(req.EscalatedToRole) != "" {
		role, ok := models.ParseUserRole(req.EscalatedToRole)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", req.EscalatedToRole))
		}
		escalation.EscalatedToRole = &role
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		escalation.ComplaintID = c.ID
		exists, err := tx.EscalationExists(ctx, c.ID, level)
		if err != nil {
			return appErrors.Internal(err, "failed to check escalations")
		}
		if exists {
			return appErrors.Clonef(appErrors.ErrConflict, "complaint %s is already escalated at level %s", c.Code, level)
		}
		if err := tx.InsertEscalation(ctx, escalation); err != nil {
			return appErrors.Internal(err, "failed to store escalation")
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineEscalated, "", string(level), actor.idPtr(), escalation.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEscalation(string(level), false)
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// Resolve marks the complaint resolved, posting the note as a public message and linking proof attachments.
func (s *AdminComplaintService) Resolve(ctx context.Context, actor Actor, code string, req dto.ResolveRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, assignRoles...); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(req.ResolutionNote)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution note is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	attachmentIDs := uniqueStrings(req.AttachmentIDs)
	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if err := ValidateStatusTransition(c.Status, models.StatusResolved, true); err != nil {
			return err
		}
		oldStatus := c.Status
		c.Status = models.StatusResolved
		if c.ResolvedAt == nil {
			now := s.complaints.now()
			c.ResolvedAt = &now
		}
		linked, err := tx.LinkAttachments(ctx, c.ID, actor.ID, attachmentIDs)
		if err != nil {
			return appErrors.Internal(err, "failed to link attachments")
		}
		if int(linked) != len(attachmentIDs) {
			return appErrors.Clone(appErrors.ErrValidation, "some attachments do not exist or are already linked")
		}
		message := &models.ComplaintMessage{ComplaintID: c.ID, SenderID: actor.ID, Message: note}
		if err := tx.InsertMessage(ctx, message); err != nil {
			return appErrors.Internal(err, "failed to store resolution note")
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineResolved, string(oldStatus), string(c.Status), actor.idPtr(), "Resolution note added")
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// Close closes a resolved complaint.
func (s *AdminComplaintService) Close(ctx context.Context, actor Actor, code string, req dto.CloseRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, statusRoles...); err != nil {
		return nil, err
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if err := ValidateStatusTransition(c.Status, models.StatusClosed, true); err != nil {
			return err
		}
		if c.Status == models.StatusClosed {
			return nil
		}
		oldStatus := c.Status
		now := s.complaints.now()
		c.Status = models.StatusClosed
		c.ClosedAt = &now
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineClosed, string(oldStatus), string(c.Status), actor.idPtr(), req.Reason)
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// ApproveReview accepts the routing of a complaint in manual review.
func (s *AdminComplaintService) ApproveReview(ctx context.Context, actor Actor, code string, req dto.ReviewApproveRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, reviewRoles...); err != nil {
		return nil, err
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if !c.NeedsReview {
			return appErrors.Clone(appErrors.ErrConflict, "Complaint is not in manual review queue")
		}
		if c.OwnerUserID == nil {
			return appErrors.Clone(appErrors.ErrConflict, "Complaint cannot be approved until routing is set (edit review first)")
		}
		c.ClearReview()
		acknowledge(c)
		if err := s.addInternalNote(ctx, tx, c, actor, req.InternalNotes); err != nil {
			return err
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineReviewApproved, "", "APPROVED", actor.idPtr(), "Manual review approved and routed")
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

// EditReview overrides categories, priority and optionally routing, then releases the complaint from review.
func (s *AdminComplaintService) EditReview(ctx context.Context, actor Actor, code string, req dto.ReviewEditRequest) (*dto.ComplaintDetail, error) {
	if err := requireRole(actor, reviewRoles...); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	categories, err := reviewCategories(req.Categories, req.PrimaryCategory)
	if err != nil {
		return nil, err
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", req.Priority))
	}
	owner := trimToNil(req.OwnerUserID)
	if owner != nil {
		if err := s.ensureUsers(ctx, owner, req.CollaboratorUserIDs); err != nil {
			return nil, err
		}
	}
	current, err := s.complaints.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	err = s.complaints.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		c.Categories = categories
		names := make([]string, len(categories))
		for i, category := range categories {
			names[i] = string(category.Category)
		}
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelineCategoryChanged, "", strings.Join(names, ","), actor.idPtr(), "Categories updated during manual review"); err != nil {
			return err
		}
		oldPriority := c.Priority
		c.Priority = priority
		if err := s.sla.ApplyInitialSLA(ctx, c); err != nil {
			if !errors.Is(err, appErrors.ErrNotFound) {
				return err
			}
			s.logger.Warn("no SLA rule for reviewed priority; deadlines unchanged", zap.String("complaint_id", c.ID), zap.String("priority", string(priority)))
		}
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelinePriorityChanged, string(oldPriority), string(priority), actor.idPtr(), "Priority set during manual review"); err != nil {
			return err
		}
		if owner != nil {
			c.ReplaceAssignments(*owner, req.CollaboratorUserIDs)
		}
		c.ClearReview()
		acknowledge(c)
		if err := s.addInternalNote(ctx, tx, c, actor, req.InternalNotes); err != nil {
			return err
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineReviewApproved, "", "EDITED_AND_ROUTED", actor.idPtr(), "Manual review edits applied")
	})
	if err != nil {
		return nil, err
	}
	return s.complaints.detailByID(ctx, actor, current.ID)
}

func (s *AdminComplaintService) addInternalNote(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint, actor Actor, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	message := &models.ComplaintMessage{ComplaintID: c.ID, SenderID: actor.ID, Message: note, Internal: true}
	if err := tx.InsertMessage(ctx, message); err != nil {
		return appErrors.Internal(err, "failed to store internal note")
	}
	return nil
}

// ensureUsers checks that the owner (when given) and every collaborator exist.
func (s *AdminComplaintService) ensureUsers(ctx context.Context, ownerID *string, collaboratorIDs []string) error {
	if ownerID != nil {
		if err := s.ensureUser(ctx, *ownerID, "owner user not found"); err != nil {
			return err
		}
	}
	for _, id := range collaboratorIDs {
		if err := s.ensureUser(ctx, id, "collaborator not found: "+id); err != nil {
			return err
		}
	}
	return nil
}

func (s *AdminComplaintService) ensureUser(ctx context.Context, id, message string) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, message)
		}
		return appErrors.Internal(err, "failed to load user")
	}
	return nil
}

// acknowledge moves freshly filed or reopened complaints to ACKNOWLEDGED once a human has routed them.
func acknowledge(c *models.Complaint) {
	if c.Status == models.StatusNew || c.Status == models.StatusReopened {
		c.Status = models.StatusAcknowledged
	}
}

// reviewCategories builds reviewer-confirmed categories (confidence 1) with exactly one primary.
func reviewCategories(raw []string, primaryRaw string) ([]models.ComplaintCategory, error) {
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one category is required")
	}
	primary, ok := NormalizeLabel(primaryRaw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown primary category %q", primaryRaw))
	}
	seen := make(map[models.Category]struct{}, len(raw))
	categories := make([]models.ComplaintCategory, 0, len(raw))
	hasPrimary := false
	for _, name := range raw {
		category, ok := NormalizeLabel(name)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", name))
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		isPrimary := category == primary
		hasPrimary = hasPrimary || isPrimary
		categories = append(categories, models.ComplaintCategory{Category: category, IsPrimary: isPrimary, Confidence: 1.0})
	}
	if !hasPrimary {
		return nil, appErrors.Clone(appErrors.ErrValidation, "primary category must be one of the categories")
	}
	return categories, nil
}
