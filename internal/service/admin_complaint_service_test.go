package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

func TestAssignReplacesRoutingAndClearsReview(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusNew, func(c *models.Complaint) { c.MarkNeedsReview("No routing rule matched") })

	_, err := w.admin.Assign(context.Background(), reporter, c.Code, dto.AssignComplaintRequest{OwnerUserID: resolverID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = w.admin.Assign(context.Background(), superUser, c.Code, dto.AssignComplaintRequest{OwnerUserID: "u-ghost"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	detail, err := w.admin.Assign(context.Background(), superUser, c.Code, dto.AssignComplaintRequest{
		OwnerUserID:         resolverID,
		CollaboratorUserIDs: []string{deptAdminID, resolverID},
	})
	require.NoError(t, err)
	assert.False(t, detail.NeedsReview)
	require.NotNil(t, detail.OwnerUserID)
	assert.Equal(t, resolverID, *detail.OwnerUserID)
	assert.Len(t, detail.Assignments, 2)

	assigned := w.store.events(c.ID, models.TimelineAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "Assignment updated", *assigned[0].Detail)
}

func TestChangeStatusFollowsLifecycle(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusAcknowledged, func(c *models.Complaint) { c.ReplaceAssignments(resolverID, nil) })

	_, err := w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "CLOSED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))

	_, err = w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "RESOLVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))

	_, err = w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "bogus"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	detail, err := w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "resolved", Comment: "Replaced the socket"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, detail.Status)
	require.NotNil(t, detail.ResolvedAt)
	assert.Equal(t, testNow, *detail.ResolvedAt)

	// same state is a no-op
	_, err = w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "RESOLVED"})
	require.NoError(t, err)
	assert.Len(t, w.store.events(c.ID, models.TimelineStatusChanged), 1)

	detail, err = w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "CLOSED"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, detail.Status)
	assert.NotNil(t, detail.ClosedAt)

	detail, err = w.admin.ChangeStatus(context.Background(), resolver, c.Code, dto.StatusChangeRequest{Status: "REOPENED"})
	require.NoError(t, err)
	assert.Equal(t, 1, detail.ReopenedCount)
}

func TestEscalateRecordsManualEscalation(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusInProgress, nil)

	_, err := w.admin.Escalate(context.Background(), superUser, c.Code, dto.EscalateRequest{Reason: "VIP", Level: "sideways"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	detail, err := w.admin.Escalate(context.Background(), superUser, c.Code, dto.EscalateRequest{Reason: "Hazard", EscalatedToRole: "super_admin"})
	require.NoError(t, err)
	require.Len(t, detail.Escalations, 1)
	escalation := detail.Escalations[0]
	assert.Equal(t, models.EscalationResolveOverdue, escalation.Level)
	assert.False(t, escalation.Automatic)
	require.NotNil(t, escalation.EscalatedToRole)
	assert.Equal(t, models.RoleSuperAdmin, *escalation.EscalatedToRole)

	_, err = w.admin.Escalate(context.Background(), superUser, c.Code, dto.EscalateRequest{Reason: "Still broken", Level: "resolve_overdue"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))
	assert.Len(t, w.store.escalationsFor(c.ID), 1)

	_, err = w.admin.Escalate(context.Background(), superUser, c.Code, dto.EscalateRequest{Reason: "Again", Level: "ACKNOWLEDGE_OVERDUE", EscalatedToUserID: strPtr(deptAdminID)})
	require.NoError(t, err)
	assert.Len(t, w.store.escalationsFor(c.ID), 2)
}

func TestResolveRequiresNoteAndStoresMessage(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusInProgress, func(c *models.Complaint) { c.ReplaceAssignments(resolverID, nil) })

	_, err := w.admin.Resolve(context.Background(), resolver, c.Code, dto.ResolveRequest{ResolutionNote: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	proof := uuid.NewString()
	w.store.staged[proof] = true
	detail, err := w.admin.Resolve(context.Background(), resolver, c.Code, dto.ResolveRequest{ResolutionNote: "Socket replaced", AttachmentIDs: []string{proof}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, detail.Status)
	assert.NotNil(t, detail.ResolvedAt)

	messages := w.store.messagesFor(c.ID)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].Internal)
	assert.Equal(t, "Socket replaced", messages[0].Message)
	assert.Len(t, w.store.events(c.ID, models.TimelineResolved), 1)
}

func TestCloseOnlyAfterResolution(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	open := w.seed(models.StatusInProgress, nil)
	_, err := w.admin.Close(context.Background(), superUser, open.Code, dto.CloseRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))

	resolved := w.seed(models.StatusResolved, nil)
	detail, err := w.admin.Close(context.Background(), superUser, resolved.Code, dto.CloseRequest{Reason: "Confirmed by reporter"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, detail.Status)
	assert.Len(t, w.store.events(resolved.ID, models.TimelineClosed), 1)
}

func TestApproveReviewConflicts(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	notInReview := w.seed(models.StatusNew, nil)
	unrouted := w.seed(models.StatusNew, func(c *models.Complaint) { c.MarkNeedsReview("No routing rule matched") })

	_, err := w.admin.ApproveReview(context.Background(), superUser, notInReview.Code, dto.ReviewApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))
	assert.Equal(t, "Complaint is not in manual review queue", appErrors.FromError(err).Message)

	_, err = w.admin.ApproveReview(context.Background(), reviewer, unrouted.Code, dto.ReviewApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))
	assert.Equal(t, "Complaint cannot be approved until routing is set (edit review first)", appErrors.FromError(err).Message)
	assert.True(t, w.store.get(unrouted.ID).NeedsReview)
}

func TestApproveReviewAcknowledges(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusNew, func(c *models.Complaint) {
		c.ReplaceAssignments(resolverID, nil)
		c.NeedsReview = true
		reason := "Low model confidence"
		c.ReviewReason = &reason
	})

	detail, err := w.admin.ApproveReview(context.Background(), reviewer, c.Code, dto.ReviewApproveRequest{InternalNotes: "Routing looks right"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, detail.Status)
	assert.False(t, detail.NeedsReview)
	assert.Nil(t, detail.ReviewReason)

	messages := w.store.messagesFor(c.ID)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].Internal)

	approved := w.store.events(c.ID, models.TimelineReviewApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "APPROVED", *approved[0].NewValue)
}

func TestEditReviewOverridesPrediction(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusReopened, func(c *models.Complaint) { c.MarkNeedsReview("Low model confidence") })

	_, err := w.admin.EditReview(context.Background(), reviewer, c.Code, dto.ReviewEditRequest{
		Categories:      []string{"plumbing"},
		PrimaryCategory: "electrical",
		Priority:        "HIGH",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	detail, err := w.admin.EditReview(context.Background(), reviewer, c.Code, dto.ReviewEditRequest{
		Categories:          []string{"plumbing", "Electrical", "plumbing"},
		PrimaryCategory:     "ELECTRICAL",
		Priority:            "high",
		OwnerUserID:         strPtr(resolverID),
		CollaboratorUserIDs: []string{deptAdminID},
		InternalNotes:       "Water near wiring",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAcknowledged, detail.Status)
	assert.False(t, detail.NeedsReview)
	assert.Equal(t, models.PriorityHigh, detail.Priority)
	require.Len(t, detail.Categories, 2)
	primary, ok := detail.PrimaryCategory()
	require.True(t, ok)
	assert.Equal(t, models.CategoryElectrical, primary)
	for _, category := range detail.Categories {
		assert.Equal(t, 1.0, category.Confidence)
	}
	require.NotNil(t, detail.AcknowledgeDueAt)
	assert.Equal(t, testNow.Add(60*time.Minute), *detail.AcknowledgeDueAt)
	require.NotNil(t, detail.OwnerUserID)
	assert.Equal(t, resolverID, *detail.OwnerUserID)

	changed := w.store.events(c.ID, models.TimelineCategoryChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "PLUMBING,ELECTRICAL", *changed[0].NewValue)
	approved := w.store.events(c.ID, models.TimelineReviewApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "EDITED_AND_ROUTED", *approved[0].NewValue)
}
