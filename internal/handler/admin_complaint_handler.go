package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/service"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

type adminComplaintService interface {
	Assign(ctx context.Context, actor service.Actor, code string, req dto.AssignComplaintRequest) (*dto.ComplaintDetail, error)
	ChangeStatus(ctx context.Context, actor service.Actor, code string, req dto.StatusChangeRequest) (*dto.ComplaintDetail, error)
	Escalate(ctx context.Context, actor service.Actor, code string, req dto.EscalateRequest) (*dto.ComplaintDetail, error)
	Resolve(ctx context.Context, actor service.Actor, code string, req dto.ResolveRequest) (*dto.ComplaintDetail, error)
	Close(ctx context.Context, actor service.Actor, code string, req dto.CloseRequest) (*dto.ComplaintDetail, error)
	ApproveReview(ctx context.Context, actor service.Actor, code string, req dto.ReviewApproveRequest) (*dto.ComplaintDetail, error)
	EditReview(ctx context.Context, actor service.Actor, code string, req dto.ReviewEditRequest) (*dto.ComplaintDetail, error)
}

type escalationSweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// AdminComplaintHandler exposes the staff workflow commands.
type AdminComplaintHandler struct {
	service adminComplaintService
	sweeper escalationSweeper
}

// NewAdminComplaintHandler builds the handler.
func NewAdminComplaintHandler(svc adminComplaintService, sweeper escalationSweeper) *AdminComplaintHandler {
	return &AdminComplaintHandler{service: svc, sweeper: sweeper}
}

// run binds the payload, invokes the command for the path's complaint and writes the updated detail.
func run[T any](c *gin.Context, cmd func(context.Context, service.Actor, string, T) (*dto.ComplaintDetail, error), bindMessage string, optionalBody bool) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req T
	if !optionalBody || c.Request.ContentLength > 0 {
		if !bindJSON(c, &req, bindMessage) {
			return
		}
	}
	detail, err := cmd(c.Request.Context(), actor, c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Assign godoc
// @Summary Assign owner and collaborators
// @Tags Admin
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.AssignComplaintRequest true "Assignment"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/complaints/{code}/assign [post]
func (h *AdminComplaintHandler) Assign(c *gin.Context) {
	run(c, h.service.Assign, "invalid assignment payload", false)
}

// ChangeStatus godoc
// @Summary Move a complaint through the lifecycle
// @Tags Admin
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.StatusChangeRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/complaints/{code}/status [post]
func (h *AdminComplaintHandler) ChangeStatus(c *gin.Context) {
	run(c, h.service.ChangeStatus, "invalid status payload", false)
}

// Escalate godoc
// @Summary Raise a manual escalation
// @Tags Admin
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.EscalateRequest true "Escalation"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/complaints/{code}/escalate [post]
func (h *AdminComplaintHandler) Escalate(c *gin.Context) {
	run(c, h.service.Escalate, "invalid escalation payload", false)
}

// Resolve godoc
// @Summary Resolve with a public note
// @Tags Admin
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.ResolveRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/complaints/{code}/resolve [post]
func (h *AdminComplaintHandler) Resolve(c *gin.Context) {
	run(c, h.service.Resolve, "invalid resolution payload", false)
}

// Close godoc
// @Summary Close a resolved complaint
// @Tags Admin
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.CloseRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/complaints/{code}/close [post]
func (h *AdminComplaintHandler) Close(c *gin.Context) {
	run(c, h.service.Close, "invalid close payload", true)
}

// ApproveReview godoc
// @Summary Approve the routing of a complaint in review
// @Tags Review
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.ReviewApproveRequest false "Internal notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /review/complaints/{code}/approve [post]
func (h *AdminComplaintHandler) ApproveReview(c *gin.Context) {
	run(c, h.service.ApproveReview, "invalid review payload", true)
}

// EditReview godoc
// @Summary Override classification and routing
// @Tags Review
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.ReviewEditRequest true "Review edits"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /review/complaints/{code}/edit [post]
func (h *AdminComplaintHandler) EditReview(c *gin.Context) {
	run(c, h.service.EditReview, "invalid review payload", false)
}

// Sweep godoc
// @Summary Run the SLA escalation sweep now
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/sla/sweep [post]
func (h *AdminComplaintHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"checked":   result.Checked,
		"escalated": result.Escalated,
		"failed":    result.Failed,
	}, nil)
}
