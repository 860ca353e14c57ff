package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	"github.com/noah-isme/campus-complaints-api/pkg/classifier"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/jobs"
	"github.com/noah-isme/campus-complaints-api/pkg/storage"
)

// Image modes for attachments sent to the classifier.
const (
	ImageModeURL    = "URL"
	ImageModeBase64 = "BASE64"
	ImageModeBytes  = "BYTES"
)

const (
	reasonPredictionUnavailable = "Prediction service unavailable"
	reasonLabelsMissing         = "Prediction labels missing"
	reasonNoValidCategories     = "No valid categories parsed"
	reasonLowConfidence         = "Low model confidence"

	defaultLabelConfidence = 0.5
	defaultMaxInlineBytes  = 2 << 20
)

var labelAliases = map[string]models.Category{
	"HARRASHMENT": models.CategoryHarassment,
	"LIBRARY":     models.CategoryOthers,
	"MESS":        models.CategoryOthers,
	"OTHER":       models.CategoryOthers,
}

// Classifier performs one prediction call. Implementations never return nil.
type Classifier interface {
	Predict(ctx context.Context, item classifier.Item) classifier.Result
}

type attachmentLister interface {
	ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error)
}

type inlineReader interface {
	ReadLimited(name string, maxBytes int64) ([]byte, error)
}

type attachmentURLer interface {
	PublicURL(attachment models.Attachment) (string, error)
}

// PredictionOptions controls how attachments are forwarded to the classifier.
type PredictionOptions struct {
	ImageMode      string
	MaxInlineBytes int
}

// PredictionDeps groups the collaborators of PredictionService.
type PredictionDeps struct {
	Store       complaintStore
	Classifier  Classifier
	Attachments attachmentLister
	Files       inlineReader
	URLs        attachmentURLer
	SLA         *SLAService
	Routing     *RoutingService
	Timeline    *TimelineService
	Metrics     *MetricsService
	Logger      *zap.Logger
}

// PredictionService calls the classifier and applies its verdict to a complaint.
type PredictionService struct {
	store       complaintStore
	classifier  Classifier
	attachments attachmentLister
	files       inlineReader
	urls        attachmentURLer
	sla         *SLAService
	routing     *RoutingService
	timeline    *TimelineService
	metrics     *MetricsService
	logger      *zap.Logger
	opts        PredictionOptions
}

// NewPredictionService constructs the service.
func NewPredictionService(deps PredictionDeps, opts PredictionOptions) *PredictionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	opts.ImageMode = strings.ToUpper(strings.TrimSpace(opts.ImageMode))
	if opts.ImageMode == "" {
		opts.ImageMode = ImageModeURL
	}
	if opts.MaxInlineBytes <= 0 {
		opts.MaxInlineBytes = defaultMaxInlineBytes
	}
	return &PredictionService{
		store:       deps.Store,
		classifier:  deps.Classifier,
		attachments: deps.Attachments,
		files:       deps.Files,
		urls:        deps.URLs,
		sla:         deps.SLA,
		routing:     deps.Routing,
		timeline:    deps.Timeline,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		opts:        opts,
	}
}

// RunAndApply classifies the complaint outside of any lock, then applies the result under the
// complaint's row lock. Classifier failures never surface as errors; they park the complaint in review.
func (s *PredictionService) RunAndApply(ctx context.Context, complaintID string, actorID *string, threshold float64) (*models.PredictionOutcome, error) {
	complaint, err := s.store.FindByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Internal(err, "failed to load complaint")
	}

	item := classifier.Item{Title: complaint.Title, Description: complaint.Description, Images: s.buildImages(ctx, complaint.ID)}
	result := s.classifier.Predict(ctx, item)

	var outcome *models.PredictionOutcome
	err = s.store.WithComplaint(ctx, complaintID, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		var applyErr error
		outcome, applyErr = s.Apply(ctx, tx, c, result, actorID, threshold)
		return applyErr
	})
	if err != nil {
		return nil, wrapStoreError(err, "failed to apply prediction")
	}
	s.metrics.RecordPrediction(outcome.ReviewRequired)
	return outcome, nil
}

// JobTypePredictionRerun marks queued re-classification jobs. The job key is the complaint id and
// the payload the requesting user id.
const JobTypePredictionRerun = "prediction.rerun"

// RerunJobHandler returns a queue handler that re-classifies the complaint named by the job key
// against the threshold in force when the job runs.
func (s *PredictionService) RerunJobHandler(thresholds thresholdProvider) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		var actorID *string
		if id, ok := job.Payload.(string); ok && id != "" {
			actorID = &id
		}
		_, err := s.RunAndApply(ctx, job.Key, actorID, thresholds.Threshold(ctx))
		if errors.Is(err, appErrors.ErrNotFound) {
			s.logger.Warn("dropping prediction rerun for missing complaint", zap.String("complaint_id", job.Key))
			return nil
		}
		return err
	}
}

// Apply records the prediction and rewrites categories, priority, deadlines, routing and the review
// flag of a locked complaint. Confidence gating runs last and overrides a successful route.
func (s *PredictionService) Apply(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint, result classifier.Result, actorID *string, threshold float64) (*models.PredictionOutcome, error) {
	record := newPredictionRecord(c.ID, result)
	if err := tx.InsertPrediction(ctx, record); err != nil {
		return nil, appErrors.Internal(err, "failed to store prediction")
	}
	outcome := &models.PredictionOutcome{Record: record}

	success, ok := result.(classifier.Success)
	if !ok {
		reason := "unknown classifier result"
		if failure, isFailure := result.(classifier.Failure); isFailure {
			reason = failure.Reason
		}
		s.logger.Warn("prediction failed", zap.String("complaint_id", c.ID), zap.String("reason", reason))
		oldStatus := c.Status
		c.Status = models.StatusNew
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelinePredictionFailed, string(oldStatus), string(c.Status), actorID, reason); err != nil {
			return nil, err
		}
		return s.review(ctx, tx, c, outcome, reasonPredictionUnavailable, actorID)
	}

	if len(success.Labels) == 0 {
		return s.review(ctx, tx, c, outcome, reasonLabelsMissing, actorID)
	}
	categories := mapCategories(success.Labels)
	if len(categories) == 0 {
		c.Categories = nil
		return s.review(ctx, tx, c, outcome, reasonNoValidCategories, actorID)
	}
	c.Categories = categories

	overall := overallConfidence(success.OverallConfidence, categories)
	c.ClearReview()
	oldPriority := c.Priority
	c.Priority = PriorityFromSeverity(success.SeverityScore)
	if err := s.sla.ApplyInitialSLA(ctx, c); err != nil {
		if !errors.Is(err, appErrors.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("no SLA rule for predicted priority; deadlines unchanged",
			zap.String("complaint_id", c.ID), zap.String("priority", string(c.Priority)))
	}
	if err := s.timeline.Record(ctx, tx, c.ID, models.TimelinePredictionCompleted, "", fmt.Sprintf("%.2f", overall), actorID,
		fmt.Sprintf("Prediction completed with %d category labels", len(categories))); err != nil {
		return nil, err
	}
	if oldPriority != c.Priority {
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelinePriorityChanged, string(oldPriority), string(c.Priority), actorID, "Priority derived from severity score"); err != nil {
			return nil, err
		}
	}

	primary, _ := c.PrimaryCategory()
	resolution, err := s.routing.Resolve(ctx, primary, c.Hostel, c.Building)
	if err != nil {
		return nil, err
	}
	if !resolution.Resolved {
		if _, err := s.review(ctx, tx, c, outcome, resolution.Reason, actorID); err != nil {
			return nil, err
		}
	} else {
		c.ReplaceAssignments(resolution.OwnerUserID, resolution.CollaboratorIDs)
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelineAssigned, "", resolution.OwnerUserID, actorID, resolution.Reason); err != nil {
			return nil, err
		}
	}

	if overall < threshold {
		return s.review(ctx, tx, c, outcome, reasonLowConfidence, actorID)
	}
	outcome.ReviewRequired = c.NeedsReview
	if c.ReviewReason != nil {
		outcome.ReviewReason = *c.ReviewReason
	}
	return outcome, nil
}

func (s *PredictionService) review(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint, outcome *models.PredictionOutcome, reason string, actorID *string) (*models.PredictionOutcome, error) {
	if err := markNeedsReview(ctx, s.timeline, tx, c, reason, actorID); err != nil {
		return nil, err
	}
	outcome.ReviewRequired = true
	outcome.ReviewReason = reason
	return outcome, nil
}

// markNeedsReview parks the complaint in manual review, dropping any routing.
func markNeedsReview(ctx context.Context, timeline *TimelineService, tx repository.ComplaintTx, c *models.Complaint, reason string, actorID *string) error {
	c.MarkNeedsReview(reason)
	return timeline.Record(ctx, tx, c.ID, models.TimelineReviewRequired, "", reason, actorID, "Placed in manual review queue")
}

func (s *PredictionService) buildImages(ctx context.Context, complaintID string) []interface{} {
	if s.attachments == nil {
		return nil
	}
	attachments, err := s.attachments.ListByComplaint(ctx, complaintID)
	if err != nil {
		s.logger.Warn("failed to list attachments for prediction", zap.String("complaint_id", complaintID), zap.Error(err))
		return nil
	}
	images := make([]interface{}, 0, len(attachments))
	for _, a := range attachments {
		if !a.IsImage() {
			continue
		}
		image, err := s.imageFor(a)
		if err != nil {
			s.logger.Warn("skipping attachment for prediction", zap.String("attachment_id", a.ID), zap.Error(err))
			continue
		}
		images = append(images, image)
	}
	return images
}

func (s *PredictionService) imageFor(a models.Attachment) (interface{}, error) {
	switch s.opts.ImageMode {
	case ImageModeBase64, ImageModeBytes:
		if s.files == nil {
			return nil, errors.New("no attachment storage configured")
		}
		data, err := s.files.ReadLimited(a.StoragePath, int64(s.opts.MaxInlineBytes))
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return nil, fmt.Errorf("attachment exceeds %d inline bytes", s.opts.MaxInlineBytes)
			}
			return nil, err
		}
		if s.opts.ImageMode == ImageModeBase64 {
			return base64.StdEncoding.EncodeToString(data), nil
		}
		values := make([]int, len(data))
		for i, b := range data {
			values[i] = int(b)
		}
		return values, nil
	default:
		if s.urls == nil {
			return nil, errors.New("no attachment url builder configured")
		}
		return s.urls.PublicURL(a)
	}
}

// PriorityFromSeverity maps a severity score to a priority. Percentages are scaled to [0,1];
// a missing score counts as 0.5.
func PriorityFromSeverity(score *float64) models.Priority {
	v := defaultLabelConfidence
	if score != nil {
		v = *score
	}
	if v > 1 {
		v /= 100
	}
	switch {
	case v >= 0.85:
		return models.PriorityCritical
	case v >= 0.65:
		return models.PriorityHigh
	case v >= 0.35:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// NormalizeLabel maps a free-form classifier label onto a category.
func NormalizeLabel(raw string) (models.Category, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", false
	}
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, trimmed)
	if alias, ok := labelAliases[normalized]; ok {
		return alias, true
	}
	return models.ParseCategory(normalized)
}

// mapCategories sorts labels by confidence (stable, descending), drops unmapped ones and flags the
// first surviving category as primary.
func mapCategories(labels []classifier.Label) []models.ComplaintCategory {
	type scored struct {
		name       string
		confidence float64
	}
	ranked := make([]scored, len(labels))
	for i, l := range labels {
		conf := defaultLabelConfidence
		if l.Confidence != nil {
			conf = *l.Confidence
		}
		ranked[i] = scored{name: l.Name, confidence: conf}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].confidence > ranked[j].confidence })

	seen := make(map[models.Category]struct{}, len(ranked))
	categories := make([]models.ComplaintCategory, 0, len(ranked))
	for _, r := range ranked {
		category, ok := NormalizeLabel(r.name)
		if !ok {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, models.ComplaintCategory{
			Category:   category,
			IsPrimary:  len(categories) == 0,
			Confidence: r.confidence,
		})
	}
	return categories
}

func overallConfidence(given *float64, categories []models.ComplaintCategory) float64 {
	if given != nil {
		return *given
	}
	if len(categories) == 0 {
		return 0
	}
	var sum float64
	for _, c := range categories {
		sum += c.Confidence
	}
	return sum / float64(len(categories))
}

func newPredictionRecord(complaintID string, result classifier.Result) *models.PredictionRecord {
	record := &models.PredictionRecord{ComplaintID: complaintID}
	if raw := result.RawBody(); raw != "" {
		record.RawBody = &raw
	}
	switch r := result.(type) {
	case classifier.Success:
		record.Success = true
		if r.ModelVersion != "" {
			version := r.ModelVersion
			record.ModelVersion = &version
		}
		record.OverallConfidence = r.OverallConfidence
		record.SeverityScore = r.SeverityScore
		record.Labels = encodeLabels(r.Labels)
	case classifier.Failure:
		reason := r.Error()
		record.FailureReason = &reason
	}
	return record
}

type storedLabel struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func encodeLabels(labels []classifier.Label) json.RawMessage {
	out := make([]storedLabel, len(labels))
	for i, l := range labels {
		out[i] = storedLabel{Label: l.Name, Confidence: l.Confidence}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}
