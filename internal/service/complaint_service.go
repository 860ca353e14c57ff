package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/jobs"
	"github.com/noah-isme/campus-complaints-api/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type complaintStore interface {
	Create(ctx context.Context, complaint *models.Complaint, fn func(ctx context.Context, tx repository.ComplaintTx) error) error
	WithComplaint(ctx context.Context, id string, fn repository.ComplaintFn) error
	FindByID(ctx context.Context, id string) (*models.Complaint, error)
	FindByCode(ctx context.Context, code string) (*models.Complaint, error)
	List(ctx context.Context, filter models.ComplaintFilter) ([]dto.ComplaintSummary, int, error)
	ListReviewQueue(ctx context.Context, page, pageSize int) ([]dto.ComplaintSummary, int, error)
}

type codeGenerator interface {
	Next(ctx context.Context) (string, error)
}

type thresholdProvider interface {
	Threshold(ctx context.Context) float64
}

type predictionRunner interface {
	RunAndApply(ctx context.Context, complaintID string, actorID *string, threshold float64) (*models.PredictionOutcome, error)
}

type predictionQueue interface {
	Enqueue(job jobs.Job) error
}

type complaintAttachments interface {
	Upload(ctx context.Context, uploaderID string, complaintID *string, uploads []UploadedFile) ([]models.Attachment, error)
	ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error)
}

type messageReader interface {
	ListByComplaint(ctx context.Context, complaintID string, includeInternal bool) ([]models.ComplaintMessage, error)
}

type escalationReader interface {
	ListByComplaint(ctx context.Context, complaintID string) ([]models.Escalation, error)
}

type predictionReader interface {
	Latest(ctx context.Context, complaintID string) (*models.PredictionRecord, error)
}

// ComplaintDeps groups the collaborators of ComplaintService.
type ComplaintDeps struct {
	Store       complaintStore
	Codes       codeGenerator
	Users       userDirectory
	Timeline    *TimelineService
	SLA         *SLAService
	Prediction  predictionRunner
	Thresholds  thresholdProvider
	Queue       predictionQueue
	Attachments complaintAttachments
	Messages    messageReader
	Escalations escalationReader
	Predictions predictionReader
	Cache       *CacheService
	Logger      *zap.Logger
}

// ComplaintOptions toggles optional behaviour.
type ComplaintOptions struct {
	RerunOnUpdate bool
}

// ComplaintService implements the reporter-facing complaint commands and the complaint queries.
type ComplaintService struct {
	store       complaintStore
	codes       codeGenerator
	access      accessPolicy
	timeline    *TimelineService
	sla         *SLAService
	prediction  predictionRunner
	thresholds  thresholdProvider
	queue       predictionQueue
	attachments complaintAttachments
	messages    messageReader
	escalations escalationReader
	predictions predictionReader
	cache       *CacheService
	logger      *zap.Logger
	validator   *validator.Validate
	opts        ComplaintOptions
	now         func() time.Time
}

// NewComplaintService constructs the service.
func NewComplaintService(deps ComplaintDeps, opts ComplaintOptions) *ComplaintService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ComplaintService{
		store:       deps.Store,
		codes:       deps.Codes,
		access:      accessPolicy{users: deps.Users},
		timeline:    deps.Timeline,
		sla:         deps.SLA,
		prediction:  deps.Prediction,
		thresholds:  deps.Thresholds,
		queue:       deps.Queue,
		attachments: deps.Attachments,
		messages:    deps.Messages,
		escalations: deps.Escalations,
		predictions: deps.Predictions,
		cache:       deps.Cache,
		logger:      deps.Logger,
		validator:   validator.New(),
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue attaches the asynchronous prediction queue once it exists.
func (s *ComplaintService) SetQueue(queue predictionQueue) {
	s.queue = queue
}

// Create files a complaint, links staged attachments and runs the first prediction.
func (s *ComplaintService) Create(ctx context.Context, actor Actor, req dto.CreateComplaintRequest) (*dto.ComplaintDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complaint payload")
	}
	code, err := s.codes.Next(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to allocate complaint code")
	}

	complaint := &models.Complaint{
		Code:               code,
		CreatedBy:          actor.ID,
		Title:              strings.TrimSpace(req.Title),
		Description:        strings.TrimSpace(req.Description),
		Hostel:             trimToNil(req.Hostel),
		Building:           optional(req.Building),
		Room:               optional(req.Room),
		PreferredVisitSlot: trimToNil(req.PreferredVisitSlot),
		Anonymous:          req.Anonymous,
		Status:             models.StatusNew,
		Priority:           models.PriorityMedium,
		CreatedAt:          s.now(),
	}
	if err := s.sla.ApplyInitialSLA(ctx, complaint); err != nil {
		if !errors.Is(err, appErrors.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("no SLA rule for default priority", zap.String("priority", string(complaint.Priority)))
	}

	attachmentIDs := uniqueStrings(req.AttachmentIDs)
	err = s.store.Create(ctx, complaint, func(ctx context.Context, tx repository.ComplaintTx) error {
		if err := s.timeline.Record(ctx, tx, complaint.ID, models.TimelineCreated, "", string(complaint.Status), actor.idPtr(), "Complaint submitted"); err != nil {
			return err
		}
		linked, err := tx.LinkAttachments(ctx, complaint.ID, actor.ID, attachmentIDs)
		if err != nil {
			return appErrors.Internal(err, "failed to link attachments")
		}
		if int(linked) != len(attachmentIDs) {
			return appErrors.Clone(appErrors.ErrValidation, "some attachments do not exist or are already linked")
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err, "failed to create complaint")
	}
	logger.FromContext(ctx, s.logger).Info("complaint created", zap.String("complaint_id", complaint.ID), zap.String("code", complaint.Code))

	s.runPrediction(ctx, complaint.ID, actor)
	s.invalidateReviewQueue(ctx)
	return s.detailByID(ctx, actor, complaint.ID)
}

// Update edits complaint details and re-runs the prediction when requested, or when the text changed
// and rerun-on-update is enabled.
func (s *ComplaintService) Update(ctx context.Context, actor Actor, code string, req dto.UpdateComplaintRequest) (*dto.ComplaintDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complaint payload")
	}
	current, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	textChanged := false
	err = s.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if title := strings.TrimSpace(deref(req.Title)); title != "" && title != c.Title {
			if err := s.timeline.Record(ctx, tx, c.ID, models.TimelineUpdated, c.Title, title, actor.idPtr(), "Title updated"); err != nil {
				return err
			}
			c.Title = title
			textChanged = true
		}
		if description := strings.TrimSpace(deref(req.Description)); description != "" && description != c.Description {
			if err := s.timeline.Record(ctx, tx, c.ID, models.TimelineUpdated, "", "", actor.idPtr(), "Description updated"); err != nil {
				return err
			}
			c.Description = description
			textChanged = true
		}
		if req.Hostel != nil {
			c.Hostel = trimToNil(req.Hostel)
		}
		if req.Building != nil {
			c.Building = trimToNil(req.Building)
		}
		if req.Room != nil {
			c.Room = trimToNil(req.Room)
		}
		if req.PreferredVisitSlot != nil {
			c.PreferredVisitSlot = trimToNil(req.PreferredVisitSlot)
		}
		if req.Anonymous != nil {
			c.Anonymous = *req.Anonymous
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rerun := textChanged && s.opts.RerunOnUpdate
	if req.RerunPrediction != nil {
		rerun = *req.RerunPrediction
	}
	if rerun {
		s.runPrediction(ctx, current.ID, actor)
		s.invalidateReviewQueue(ctx)
	}
	return s.detailByID(ctx, actor, current.ID)
}

// AddMessage posts a message. Internal notes are reserved for staff.
func (s *ComplaintService) AddMessage(ctx context.Context, actor Actor, code string, req dto.AddMessageRequest) (*models.ComplaintMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if req.Internal && !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "internal messages are restricted to staff")
	}
	current, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	message := &models.ComplaintMessage{
		ComplaintID: current.ID,
		SenderID:    actor.ID,
		Message:     strings.TrimSpace(req.Message),
		Internal:    req.Internal,
	}
	err = s.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if err := tx.InsertMessage(ctx, message); err != nil {
			return appErrors.Internal(err, "failed to store message")
		}
		detail := "Message added"
		if message.Internal {
			detail = "Internal note added"
		}
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineMessageAdded, "", "", actor.idPtr(), detail)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// StageAttachments stores files before the complaint they belong to exists.
func (s *ComplaintService) StageAttachments(ctx context.Context, actor Actor, uploads []UploadedFile) ([]models.Attachment, error) {
	return s.attachments.Upload(ctx, actor.ID, nil, uploads)
}

// UploadAttachments adds files to an existing complaint and optionally queues a prediction rerun.
func (s *ComplaintService) UploadAttachments(ctx context.Context, actor Actor, code string, uploads []UploadedFile, rerun bool) (*dto.UploadAttachmentsResponse, error) {
	current, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	stored, err := s.attachments.Upload(ctx, actor.ID, &current.ID, uploads)
	if err != nil {
		return nil, err
	}
	err = s.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineAttachmentAdded, "", strconv.Itoa(len(stored)), actor.idPtr(), "Attachments uploaded")
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.UploadAttachmentsResponse{Attachments: stored}
	if rerun {
		resp.PredictionQueued = s.enqueueRerun(ctx, current.ID, actor)
	}
	return resp, nil
}

// Reopen moves a resolved or closed complaint back into the workflow.
func (s *ComplaintService) Reopen(ctx context.Context, actor Actor, code string, req dto.ReopenRequest) (*dto.ComplaintDetail, error) {
	current, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	err = s.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if c.Status != models.StatusResolved && c.Status != models.StatusClosed {
			return appErrors.Clone(appErrors.ErrValidation, "only resolved or closed complaints can be reopened")
		}
		oldStatus := c.Status
		c.Status = models.StatusReopened
		c.ReopenedCount++
		c.ResolvedAt = nil
		c.ClosedAt = nil
		c.ClearReview()
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineReopened, string(oldStatus), string(c.Status), actor.idPtr(), req.Reason)
	})
	if err != nil {
		return nil, err
	}
	return s.detailByID(ctx, actor, current.ID)
}

// Feedback rates a resolved or closed complaint.
func (s *ComplaintService) Feedback(ctx context.Context, actor Actor, code string, req dto.FeedbackRequest) (*dto.ComplaintDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	current, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	err = s.mutate(ctx, current.ID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if c.Status != models.StatusResolved && c.Status != models.StatusClosed {
			return appErrors.Clone(appErrors.ErrValidation, "feedback can be submitted only after resolution")
		}
		rating := req.Rating
		at := s.now()
		c.FeedbackRating = &rating
		c.FeedbackComment = optional(req.Comment)
		c.FeedbackAt = &at
		return s.timeline.Record(ctx, tx, c.ID, models.TimelineFeedbackAdded, "", strconv.Itoa(rating), actor.idPtr(), req.Comment)
	})
	if err != nil {
		return nil, err
	}
	return s.detailByID(ctx, actor, current.ID)
}

// Get returns the full complaint view if the actor may see it.
func (s *ComplaintService) Get(ctx context.Context, actor Actor, code string) (*dto.ComplaintDetail, error) {
	complaint, err := s.loadVisible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, actor, complaint)
}

// List returns the complaints visible to the actor.
func (s *ComplaintService) List(ctx context.Context, actor Actor, filter models.ComplaintFilter) ([]dto.ComplaintSummary, *models.Pagination, error) {
	filter.Page, filter.PageSize = normalizePagination(filter.Page, filter.PageSize)
	items, total, err := s.store.List(ctx, scopeFilter(actor, filter))
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list complaints")
	}
	return nonNilSummaries(items), &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

type reviewQueuePage struct {
	Items []dto.ComplaintSummary `json:"items"`
	Total int                    `json:"total"`
}

// ReviewQueue lists complaints waiting for manual review, newest first.
func (s *ComplaintService) ReviewQueue(ctx context.Context, actor Actor, page, pageSize int) ([]dto.ComplaintSummary, *models.Pagination, error) {
	if err := requireRole(actor, reviewRoles...); err != nil {
		return nil, nil, err
	}
	page, pageSize = normalizePagination(page, pageSize)
	key := s.cache.ScopedKey(ctx, cacheScopeReviewQueue, strconv.Itoa(page), strconv.Itoa(pageSize))

	var cached reviewQueuePage
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return nonNilSummaries(cached.Items), &models.Pagination{Page: page, PageSize: pageSize, TotalCount: cached.Total}, nil
	}
	items, total, err := s.store.ListReviewQueue(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list review queue")
	}
	_ = s.cache.Set(ctx, key, reviewQueuePage{Items: items, Total: total}, 0)
	return nonNilSummaries(items), &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *ComplaintService) loadVisible(ctx context.Context, actor Actor, code string) (*models.Complaint, error) {
	complaint, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Internal(err, "failed to load complaint")
	}
	if err := s.access.assertCanView(ctx, actor, complaint); err != nil {
		return nil, err
	}
	return complaint, nil
}

// mutate runs fn under the complaint's row lock and drops cached review pages afterwards.
func (s *ComplaintService) mutate(ctx context.Context, id string, fn repository.ComplaintFn) error {
	if err := s.store.WithComplaint(ctx, id, fn); err != nil {
		return wrapStoreError(err, "failed to update complaint")
	}
	s.invalidateReviewQueue(ctx)
	return nil
}

func (s *ComplaintService) invalidateReviewQueue(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, cacheScopeReviewQueue)
}

func (s *ComplaintService) runPrediction(ctx context.Context, complaintID string, actor Actor) {
	outcome, err := s.prediction.RunAndApply(ctx, complaintID, actor.idPtr(), s.thresholds.Threshold(ctx))
	if err != nil {
		s.logger.Error("failed to apply prediction", zap.String("complaint_id", complaintID), zap.Error(err))
		return
	}
	if outcome.ReviewRequired {
		s.logger.Info("complaint sent to manual review", zap.String("complaint_id", complaintID), zap.String("reason", outcome.ReviewReason))
	}
}

func (s *ComplaintService) enqueueRerun(ctx context.Context, complaintID string, actor Actor) bool {
	if s.queue == nil {
		s.runPrediction(ctx, complaintID, actor)
		s.invalidateReviewQueue(ctx)
		return false
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypePredictionRerun, Key: complaintID, Payload: actor.ID}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to queue prediction rerun", zap.String("complaint_id", complaintID), zap.Error(err))
		return false
	}
	return true
}

func (s *ComplaintService) detailByID(ctx context.Context, actor Actor, id string) (*dto.ComplaintDetail, error) {
	complaint, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Internal(err, "failed to load complaint")
	}
	return s.detail(ctx, actor, complaint)
}

func (s *ComplaintService) detail(ctx context.Context, actor Actor, complaint *models.Complaint) (*dto.ComplaintDetail, error) {
	timeline, err := s.timeline.List(ctx, complaint.ID)
	if err != nil {
		return nil, err
	}
	escalations, err := s.escalations.ListByComplaint(ctx, complaint.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load escalations")
	}
	messages, err := s.messages.ListByComplaint(ctx, complaint.ID, actor.IsStaff())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load messages")
	}
	attachments, err := s.attachments.ListByComplaint(ctx, complaint.ID)
	if err != nil {
		return nil, err
	}
	latest, err := s.predictions.Latest(ctx, complaint.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load prediction")
		}
		latest = nil
	}

	detail := &dto.ComplaintDetail{
		Complaint:        *complaint,
		Timeline:         timeline,
		Escalations:      escalations,
		Messages:         messages,
		Attachments:      attachments,
		LatestPrediction: latest,
	}
	if detail.Categories == nil {
		detail.Categories = []models.ComplaintCategory{}
	}
	if detail.Assignments == nil {
		detail.Assignments = []models.ComplaintAssignment{}
	}
	if detail.Timeline == nil {
		detail.Timeline = []models.TimelineEvent{}
	}
	if detail.Escalations == nil {
		detail.Escalations = []models.Escalation{}
	}
	if detail.Messages == nil {
		detail.Messages = []models.ComplaintMessage{}
	}
	if detail.Attachments == nil {
		detail.Attachments = []models.Attachment{}
	}
	return detail, nil
}

// wrapStoreError keeps typed errors raised inside a transaction and maps a missing row to NotFound.
func wrapStoreError(err error, message string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
	}
	return appErrors.Internal(err, message)
}

func normalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func nonNilSummaries(items []dto.ComplaintSummary) []dto.ComplaintSummary {
	if items == nil {
		return []dto.ComplaintSummary{}
	}
	return items
}

func trimToNil(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(*v)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
