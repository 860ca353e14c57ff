package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/pkg/classifier"
	"github.com/noah-isme/campus-complaints-api/pkg/jobs"
	"github.com/noah-isme/campus-complaints-api/pkg/storage"
)

func eventTypes(events []models.TimelineEvent) []models.TimelineEventType {
	out := make([]models.TimelineEventType, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func createRequest() dto.CreateComplaintRequest {
	return dto.CreateComplaintRequest{
		Title:       "Sparking socket",
		Description: "The socket next to my bed sparks when I plug in a charger",
		Building:    "Block A",
		Room:        "101",
	}
}

func TestCreateRoutesCriticalElectricalComplaint(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	w.classifier.result = successResult(0.9, 0.91, label("electrical", 0.92))

	detail, err := w.complaints.Create(context.Background(), reporter, createRequest())
	require.NoError(t, err)

	assert.Equal(t, "CMP-2024-1001", detail.Code)
	assert.Equal(t, models.StatusNew, detail.Status)
	assert.Equal(t, models.PriorityCritical, detail.Priority)
	assert.False(t, detail.NeedsReview)
	require.Len(t, detail.Categories, 1)
	assert.Equal(t, models.CategoryElectrical, detail.Categories[0].Category)
	assert.True(t, detail.Categories[0].IsPrimary)

	require.NotNil(t, detail.OwnerUserID)
	assert.Equal(t, resolverID, *detail.OwnerUserID)
	require.Len(t, detail.Assignments, 2)
	assert.Equal(t, models.AssignmentOwner, detail.Assignments[0].Role)
	assert.Equal(t, deptAdminID, detail.Assignments[1].UserID)
	assert.Equal(t, models.AssignmentCollaborator, detail.Assignments[1].Role)

	require.NotNil(t, detail.AcknowledgeDueAt)
	require.NotNil(t, detail.ResolveDueAt)
	assert.Equal(t, testNow.Add(30*time.Minute), *detail.AcknowledgeDueAt)
	assert.Equal(t, testNow.Add(240*time.Minute), *detail.ResolveDueAt)

	assert.Equal(t, []models.TimelineEventType{
		models.TimelineCreated,
		models.TimelinePredictionCompleted,
		models.TimelinePriorityChanged,
		models.TimelineAssigned,
	}, eventTypes(detail.Timeline))
	require.NotNil(t, detail.LatestPrediction)
	assert.True(t, detail.LatestPrediction.Success)
	assert.JSONEq(t, `[{"label":"electrical","confidence":0.92}]`, string(detail.LatestPrediction.Labels))

	require.Len(t, w.classifier.items, 1)
	assert.Equal(t, "Sparking socket", w.classifier.items[0].Title)
}

func TestCreateWithClassifierFailureParksInReview(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	w.classifier.result = classifier.Failure{Reason: "classifier timeout"}

	detail, err := w.complaints.Create(context.Background(), reporter, createRequest())
	require.NoError(t, err)

	assert.Equal(t, models.StatusNew, detail.Status)
	assert.Equal(t, models.PriorityMedium, detail.Priority)
	assert.True(t, detail.NeedsReview)
	require.NotNil(t, detail.ReviewReason)
	assert.Equal(t, "Prediction service unavailable", *detail.ReviewReason)
	assert.Nil(t, detail.OwnerUserID)
	assert.Empty(t, detail.Assignments)

	assert.Equal(t, []models.TimelineEventType{
		models.TimelineCreated,
		models.TimelinePredictionFailed,
		models.TimelineReviewRequired,
	}, eventTypes(detail.Timeline))
	require.NotNil(t, detail.Timeline[1].Detail)
	assert.Equal(t, "classifier timeout", *detail.Timeline[1].Detail)
	require.NotNil(t, detail.LatestPrediction)
	assert.False(t, detail.LatestPrediction.Success)
}

func TestRunAndApplyLowConfidenceClearsRouting(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusAcknowledged, func(c *models.Complaint) {
		c.ReplaceAssignments("u-old", []string{"u-old-collab"})
	})
	w.classifier.result = successResult(0.7, 0.4, label("electrical", 0.4))

	outcome, err := w.prediction.RunAndApply(context.Background(), c.ID, nil, 0.72)
	require.NoError(t, err)
	assert.True(t, outcome.ReviewRequired)
	assert.Equal(t, "Low model confidence", outcome.ReviewReason)

	stored := w.store.get(c.ID)
	assert.True(t, stored.NeedsReview)
	assert.Nil(t, stored.OwnerUserID)
	assert.Empty(t, stored.Assignments)
	assert.Equal(t, models.PriorityHigh, stored.Priority)
	require.Len(t, stored.Categories, 1)
	assert.Equal(t, models.CategoryElectrical, stored.Categories[0].Category)

	review := w.store.events(c.ID, models.TimelineReviewRequired)
	require.Len(t, review, 1)
	assert.Nil(t, review[0].ActorID)
	assert.Equal(t, "Low model confidence", *review[0].NewValue)
}

func TestRunAndApplyReviewReasons(t *testing.T) {
	cases := []struct {
		name   string
		result classifier.Result
		reason string
	}{
		{name: "no labels", result: successResult(0.5, 0.9), reason: "Prediction labels missing"},
		{name: "unknown labels", result: successResult(0.5, 0.9, label("cafeteria", 0.9)), reason: "No valid categories parsed"},
		{name: "no routing rule", result: successResult(0.5, 0.9, label("internet", 0.9)), reason: "No routing rule matched"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newWorkflow(t, ComplaintOptions{})
			c := w.seed(models.StatusNew, nil)
			w.classifier.result = tc.result

			outcome, err := w.prediction.RunAndApply(context.Background(), c.ID, strPtr(reviewerID), 0.5)
			require.NoError(t, err)
			assert.True(t, outcome.ReviewRequired)
			assert.Equal(t, tc.reason, outcome.ReviewReason)

			stored := w.store.get(c.ID)
			assert.True(t, stored.NeedsReview)
			assert.Equal(t, tc.reason, *stored.ReviewReason)
			assert.Nil(t, stored.OwnerUserID)
		})
	}
}

func TestRunAndApplyExplicitOwnerRuleEndToEnd(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	owner := deptAdminID
	w.routing.rules = routingRuleStub{
		models.CategoryElectrical: {{ID: "rule-owner", Category: models.CategoryElectrical, OwnerUserID: &owner, Active: true}},
	}
	c := w.seed(models.StatusNew, nil)
	require.Equal(t, models.PriorityMedium, c.Priority)
	w.classifier.result = classifier.Success{
		SeverityScore: floatPtr(0.9),
		Labels:        []classifier.Label{label("electrical", 0.95)},
		Raw:           `{"severityScore":0.9,"labels":[{"label":"electrical","confidence":0.95}]}`,
	}

	outcome, err := w.prediction.RunAndApply(context.Background(), c.ID, nil, 0.72)
	require.NoError(t, err)
	assert.False(t, outcome.ReviewRequired)

	stored := w.store.get(c.ID)
	assert.Equal(t, models.PriorityCritical, stored.Priority)
	assert.False(t, stored.NeedsReview)
	require.Len(t, stored.Categories, 1)
	assert.Equal(t, models.CategoryElectrical, stored.Categories[0].Category)
	assert.True(t, stored.Categories[0].IsPrimary)
	require.NotNil(t, stored.OwnerUserID)
	assert.Equal(t, deptAdminID, *stored.OwnerUserID)
	require.Len(t, stored.Assignments, 1)
	assert.Equal(t, models.AssignmentOwner, stored.Assignments[0].Role)
	require.NotNil(t, stored.AcknowledgeDueAt)
	require.NotNil(t, stored.ResolveDueAt)
	assert.Equal(t, testNow.Add(30*time.Minute), *stored.AcknowledgeDueAt)
	assert.Equal(t, testNow.Add(240*time.Minute), *stored.ResolveDueAt)
}

func TestRunAndApplyUnmappedLabelsDropEarlierCategories(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusNew, func(c *models.Complaint) {
		c.Categories = []models.ComplaintCategory{{Category: models.CategoryHostel, IsPrimary: true, Confidence: 0.8}}
	})
	w.classifier.result = successResult(0.5, 0.9, label("cafeteria", 0.9))

	outcome, err := w.prediction.RunAndApply(context.Background(), c.ID, nil, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "No valid categories parsed", outcome.ReviewReason)

	stored := w.store.get(c.ID)
	assert.True(t, stored.NeedsReview)
	assert.Empty(t, stored.Categories)
}

func TestRunAndApplyHighConfidenceClearsEarlierReview(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusNew, func(c *models.Complaint) { c.MarkNeedsReview("Prediction service unavailable") })
	w.classifier.result = successResult(0.2, 0.95, label("Electrical", 0.95))

	outcome, err := w.prediction.RunAndApply(context.Background(), c.ID, nil, 0.72)
	require.NoError(t, err)
	assert.False(t, outcome.ReviewRequired)

	stored := w.store.get(c.ID)
	assert.False(t, stored.NeedsReview)
	assert.Nil(t, stored.ReviewReason)
	assert.Equal(t, models.PriorityLow, stored.Priority)
	require.NotNil(t, stored.OwnerUserID)
	assert.Equal(t, resolverID, *stored.OwnerUserID)
}

func TestRerunJobHandler(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	handler := w.prediction.RerunJobHandler(thresholdStub(0.5))

	require.NoError(t, handler(context.Background(), jobs.Job{Type: JobTypePredictionRerun, Key: "missing"}))
	assert.Equal(t, 0, w.classifier.calls)

	c := w.seed(models.StatusNew, nil)
	w.classifier.result = successResult(0.5, 0.9, label("electrical", 0.9))
	require.NoError(t, handler(context.Background(), jobs.Job{Type: JobTypePredictionRerun, Key: c.ID, Payload: reviewerID}))
	assert.Equal(t, 1, w.classifier.calls)

	completed := w.store.events(c.ID, models.TimelinePredictionCompleted)
	require.Len(t, completed, 1)
	require.NotNil(t, completed[0].ActorID)
	assert.Equal(t, reviewerID, *completed[0].ActorID)
	assert.Equal(t, "0.90", *completed[0].NewValue)
}

type attachmentListStub []models.Attachment

func (a attachmentListStub) ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error) {
	return a, nil
}

type inlineStub map[string][]byte

func (i inlineStub) ReadLimited(name string, maxBytes int64) ([]byte, error) {
	data := i[name]
	if int64(len(data)) > maxBytes {
		return nil, storage.ErrTooLarge
	}
	return data, nil
}

type urlStub struct{}

func (urlStub) PublicURL(a models.Attachment) (string, error) {
	return "https://files.example.edu/" + a.ID, nil
}

func TestBuildImagesByMode(t *testing.T) {
	attachments := attachmentListStub{
		{ID: "a1", StoragePath: "small.png", MimeType: "image/png"},
		{ID: "a2", StoragePath: "notes.pdf", MimeType: "application/pdf"},
		{ID: "a3", StoragePath: "huge.jpg", MimeType: "image/jpeg"},
	}
	files := inlineStub{"small.png": []byte("abc"), "huge.jpg": make([]byte, 64)}

	build := func(mode string) []interface{} {
		svc := NewPredictionService(PredictionDeps{Attachments: attachments, Files: files, URLs: urlStub{}}, PredictionOptions{ImageMode: mode, MaxInlineBytes: 16})
		return svc.buildImages(context.Background(), "c1")
	}

	assert.Equal(t, []interface{}{"https://files.example.edu/a1", "https://files.example.edu/a3"}, build(""))
	assert.Equal(t, []interface{}{base64.StdEncoding.EncodeToString([]byte("abc"))}, build("base64"))
	assert.Equal(t, []interface{}{[]int{97, 98, 99}}, build(ImageModeBytes))
}

func TestPriorityFromSeverity(t *testing.T) {
	cases := []struct {
		score *float64
		want  models.Priority
	}{
		{nil, models.PriorityMedium},
		{floatPtr(0.9), models.PriorityCritical},
		{floatPtr(85), models.PriorityCritical},
		{floatPtr(0.7), models.PriorityHigh},
		{floatPtr(0.35), models.PriorityMedium},
		{floatPtr(0.1), models.PriorityLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PriorityFromSeverity(tc.score))
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]models.Category{
		"Electrical":     models.CategoryElectrical,
		" plumbing ":     models.CategoryPlumbing,
		"harrashment":    models.CategoryHarassment,
		"Mess":           models.CategoryOthers,
		"library":        models.CategoryOthers,
		"ADMINISTRATION": models.CategoryAdministration,
	}
	for raw, want := range cases {
		got, ok := NormalizeLabel(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "   ", "cafeteria", "sanitation & hygiene"} {
		_, ok := NormalizeLabel(raw)
		assert.False(t, ok, raw)
	}
}

func TestMapCategoriesOrdersAndDeduplicates(t *testing.T) {
	categories := mapCategories([]classifier.Label{
		label("plumbing", 0.3),
		label("Electrical ", 0.8),
		label("electrical", 0.7),
		{Name: "hostel"},
		label("cafeteria", 0.99),
	})
	require.Len(t, categories, 3)
	assert.Equal(t, models.CategoryElectrical, categories[0].Category)
	assert.True(t, categories[0].IsPrimary)
	assert.Equal(t, 0.8, categories[0].Confidence)
	assert.Equal(t, models.CategoryHostel, categories[1].Category)
	assert.Equal(t, 0.5, categories[1].Confidence)
	assert.False(t, categories[1].IsPrimary)
	assert.Equal(t, models.CategoryPlumbing, categories[2].Category)

	assert.InDelta(t, 0.5333, overallConfidence(nil, categories), 0.001)
	assert.Equal(t, 0.9, overallConfidence(floatPtr(0.9), categories))
}
