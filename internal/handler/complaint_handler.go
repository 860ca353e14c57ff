package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/service"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

const multipartFilesField = "files"

type complaintService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateComplaintRequest) (*dto.ComplaintDetail, error)
	Update(ctx context.Context, actor service.Actor, code string, req dto.UpdateComplaintRequest) (*dto.ComplaintDetail, error)
	AddMessage(ctx context.Context, actor service.Actor, code string, req dto.AddMessageRequest) (*models.ComplaintMessage, error)
	StageAttachments(ctx context.Context, actor service.Actor, uploads []service.UploadedFile) ([]models.Attachment, error)
	UploadAttachments(ctx context.Context, actor service.Actor, code string, uploads []service.UploadedFile, rerun bool) (*dto.UploadAttachmentsResponse, error)
	Reopen(ctx context.Context, actor service.Actor, code string, req dto.ReopenRequest) (*dto.ComplaintDetail, error)
	Feedback(ctx context.Context, actor service.Actor, code string, req dto.FeedbackRequest) (*dto.ComplaintDetail, error)
	Get(ctx context.Context, actor service.Actor, code string) (*dto.ComplaintDetail, error)
	List(ctx context.Context, actor service.Actor, filter models.ComplaintFilter) ([]dto.ComplaintSummary, *models.Pagination, error)
	ReviewQueue(ctx context.Context, actor service.Actor, page, pageSize int) ([]dto.ComplaintSummary, *models.Pagination, error)
}

// ComplaintHandler exposes the reporter facing complaint endpoints and complaint queries.
type ComplaintHandler struct {
	service complaintService
}

// NewComplaintHandler builds a complaint handler.
func NewComplaintHandler(svc complaintService) *ComplaintHandler {
	return &ComplaintHandler{service: svc}
}

// Create godoc
// @Summary File a complaint
// @Description Creates the complaint, links staged attachments and runs the classifier
// @Tags Complaints
// @Accept json
// @Produce json
// @Param payload body dto.CreateComplaintRequest true "Complaint payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints [post]
func (h *ComplaintHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.CreateComplaintRequest
	if !bindJSON(c, &req, "invalid complaint payload") {
		return
	}
	detail, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List complaints
// @Description Lists complaints visible to the caller
// @Tags Complaints
// @Produce json
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param category query string false "Category"
// @Param needs_review query bool false "Only complaints in manual review"
// @Param q query string false "Search in code, title and description"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints [get]
func (h *ComplaintHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	filter, err := complaintFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, page, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// ReviewQueue godoc
// @Summary Manual review queue
// @Tags Review
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /review/complaints [get]
func (h *ComplaintHandler) ReviewQueue(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	items, page, err := h.service.ReviewQueue(c.Request.Context(), actor, queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// Get godoc
// @Summary Complaint detail
// @Tags Complaints
// @Produce json
// @Param code path string true "Complaint code"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code} [get]
func (h *ComplaintHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit complaint details
// @Tags Complaints
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.UpdateComplaintRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code} [patch]
func (h *ComplaintHandler) Update(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.UpdateComplaintRequest
	if !bindJSON(c, &req, "invalid update payload") {
		return
	}
	detail, err := h.service.Update(c.Request.Context(), actor, c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AddMessage godoc
// @Summary Post a message
// @Description Staff may post internal notes that reporters never see
// @Tags Complaints
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.AddMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code}/messages [post]
func (h *ComplaintHandler) AddMessage(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.AddMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.AddMessage(c.Request.Context(), actor, c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Reopen godoc
// @Summary Reopen a resolved complaint
// @Tags Complaints
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.ReopenRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code}/reopen [post]
func (h *ComplaintHandler) Reopen(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.ReopenRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid reopen payload") {
		return
	}
	detail, err := h.service.Reopen(c.Request.Context(), actor, c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Feedback godoc
// @Summary Rate the resolution
// @Tags Complaints
// @Accept json
// @Produce json
// @Param code path string true "Complaint code"
// @Param payload body dto.FeedbackRequest true "Rating"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code}/feedback [post]
func (h *ComplaintHandler) Feedback(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.FeedbackRequest
	if !bindJSON(c, &req, "invalid feedback payload") {
		return
	}
	detail, err := h.service.Feedback(c.Request.Context(), actor, c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// StageAttachments godoc
// @Summary Upload files before filing a complaint
// @Description Returns attachment ids to pass as attachment_ids on create
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /attachments [post]
func (h *ComplaintHandler) StageAttachments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	uploads, closeAll, err := multipartUploads(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeAll()

	attachments, err := h.service.StageAttachments(c.Request.Context(), actor, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachments)
}

// UploadAttachments godoc
// @Summary Attach files to a complaint
// @Description Stores the files and queues a classifier rerun unless rerun_prediction=false
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param code path string true "Complaint code"
// @Param files formData file true "Files"
// @Param rerun_prediction query bool false "Rerun the classifier (default true)"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{code}/attachments [post]
func (h *ComplaintHandler) UploadAttachments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	rerun := true
	if raw := c.Query("rerun_prediction"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rerun_prediction must be a boolean"))
			return
		}
		rerun = parsed
	}
	uploads, closeAll, err := multipartUploads(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeAll()

	resp, err := h.service.UploadAttachments(c.Request.Context(), actor, c.Param("code"), uploads, rerun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

func multipartUploads(c *gin.Context) ([]service.UploadedFile, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form expected")
	}
	headers := form.File[multipartFilesField]
	if len(headers) == 0 {
		return nil, func() {}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no files in form field %q", multipartFilesField))
	}

	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]service.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, appErrors.Internal(err, "failed to read upload")
		}
		opened = append(opened, file)
		uploads = append(uploads, service.UploadedFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		})
	}
	return uploads, closeAll, nil
}

func complaintFilterFromQuery(c *gin.Context) (models.ComplaintFilter, error) {
	filter := models.ComplaintFilter{
		Search:   strings.TrimSpace(c.Query("q")),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseComplaintStatus(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority, ok := models.ParsePriority(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", raw))
		}
		filter.Priority = &priority
	}
	if raw := c.Query("category"); raw != "" {
		category, ok := models.ParseCategory(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", raw))
		}
		filter.Category = &category
	}
	if raw := c.Query("needs_review"); raw != "" {
		needsReview, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "needs_review must be a boolean")
		}
		filter.NeedsReview = &needsReview
	}
	return filter, nil
}
