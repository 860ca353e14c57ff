package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	"github.com/noah-isme/campus-complaints-api/pkg/classifier"
	"github.com/noah-isme/campus-complaints-api/pkg/jobs"
)

// memStore keeps complaints in memory. WithComplaint holds a single mutex for the whole callback and
// only commits the copy it handed out when the callback succeeds.
type memStore struct {
	mu          sync.Mutex
	complaints  map[string]*models.Complaint
	timeline    []models.TimelineEvent
	predictions []models.PredictionRecord
	escalations []models.Escalation
	messages    []models.ComplaintMessage
	staged      map[string]bool
	lastFilter  models.ComplaintFilter
	reviewLists int
}

func newMemStore() *memStore {
	return &memStore{complaints: map[string]*models.Complaint{}, staged: map[string]bool{}}
}

func cloneComplaint(c *models.Complaint) *models.Complaint {
	out := *c
	out.Categories = append([]models.ComplaintCategory(nil), c.Categories...)
	out.Assignments = append([]models.ComplaintAssignment(nil), c.Assignments...)
	return &out
}

func (s *memStore) put(c *models.Complaint) *models.Complaint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.complaints[c.ID] = cloneComplaint(c)
	return c
}

func (s *memStore) get(id string) *models.Complaint {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil
	}
	return cloneComplaint(c)
}

func (s *memStore) events(complaintID string, eventType models.TimelineEventType) []models.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelineEvent
	for _, e := range s.timeline {
		if e.ComplaintID == complaintID && (eventType == "" || e.EventType == eventType) {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) escalationsFor(complaintID string) []models.Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escalation
	for _, e := range s.escalations {
		if e.ComplaintID == complaintID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) messagesFor(complaintID string) []models.ComplaintMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ComplaintMessage
	for _, m := range s.messages {
		if m.ComplaintID == complaintID {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) Create(ctx context.Context, complaint *models.Complaint, fn func(ctx context.Context, tx repository.ComplaintTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.complaints[complaint.ID] = cloneComplaint(complaint)
	tx.commit()
	return nil
}

func (s *memStore) WithComplaint(ctx context.Context, id string, fn repository.ComplaintFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.complaints[id]
	if !ok {
		return fmt.Errorf("lock complaint: %w", sql.ErrNoRows)
	}
	working := cloneComplaint(current)
	tx := &memTx{store: s}
	if err := fn(ctx, tx, working); err != nil {
		return err
	}
	s.complaints[id] = working
	tx.commit()
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	if c := s.get(id); c != nil {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) FindByCode(ctx context.Context, code string) (*models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.complaints {
		if c.Code == code {
			return cloneComplaint(c), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) List(ctx context.Context, filter models.ComplaintFilter) ([]dto.ComplaintSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	var out []dto.ComplaintSummary
	for _, c := range s.complaints {
		if filter.CreatedBy != "" && c.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, dto.ComplaintSummary{ID: c.ID, Code: c.Code, Title: c.Title, Status: c.Status, Priority: c.Priority, NeedsReview: c.NeedsReview})
	}
	return out, len(out), nil
}

func (s *memStore) ListReviewQueue(ctx context.Context, page, pageSize int) ([]dto.ComplaintSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewLists++
	var out []dto.ComplaintSummary
	for _, c := range s.complaints {
		if c.NeedsReview {
			out = append(out, dto.ComplaintSummary{ID: c.ID, Code: c.Code, NeedsReview: true, ReviewReason: c.ReviewReason})
		}
	}
	return out, len(out), nil
}

func (s *memStore) FindOverdueIDs(ctx context.Context, deadline repository.OverdueDeadline, level models.EscalationLevel, statuses []models.ComplaintStatus, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalated := map[string]bool{}
	for _, e := range s.escalations {
		if e.Level == level {
			escalated[e.ComplaintID] = true
		}
	}
	var ids []string
	for _, c := range s.complaints {
		due := c.ResolveDueAt
		if deadline == repository.DeadlineAcknowledge {
			due = c.AcknowledgeDueAt
		}
		if due == nil || !now.After(*due) || escalated[c.ID] {
			continue
		}
		for _, status := range statuses {
			if c.Status == status {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// memTx buffers child writes until the owning callback succeeds. The store mutex is already held.
type memTx struct {
	store       *memStore
	timeline    []models.TimelineEvent
	predictions []models.PredictionRecord
	escalations []models.Escalation
	messages    []models.ComplaintMessage
	linked      []string
}

func (t *memTx) commit() {
	t.store.timeline = append(t.store.timeline, t.timeline...)
	t.store.predictions = append(t.store.predictions, t.predictions...)
	t.store.escalations = append(t.store.escalations, t.escalations...)
	t.store.messages = append(t.store.messages, t.messages...)
	for _, id := range t.linked {
		delete(t.store.staged, id)
	}
}

func (t *memTx) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	event.ID = uuid.NewString()
	event.Seq = int64(len(t.store.timeline) + len(t.timeline) + 1)
	t.timeline = append(t.timeline, *event)
	return nil
}

func (t *memTx) InsertPrediction(ctx context.Context, record *models.PredictionRecord) error {
	record.ID = uuid.NewString()
	t.predictions = append(t.predictions, *record)
	return nil
}

func (t *memTx) EscalationExists(ctx context.Context, complaintID string, level models.EscalationLevel) (bool, error) {
	for _, e := range append(append([]models.Escalation(nil), t.store.escalations...), t.escalations...) {
		if e.ComplaintID == complaintID && e.Level == level {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertEscalation(ctx context.Context, escalation *models.Escalation) error {
	escalation.ID = uuid.NewString()
	t.escalations = append(t.escalations, *escalation)
	return nil
}

func (t *memTx) InsertMessage(ctx context.Context, message *models.ComplaintMessage) error {
	message.ID = uuid.NewString()
	t.messages = append(t.messages, *message)
	return nil
}

func (t *memTx) LinkAttachments(ctx context.Context, complaintID, uploadedBy string, attachmentIDs []string) (int64, error) {
	var n int64
	for _, id := range attachmentIDs {
		if t.store.staged[id] {
			t.linked = append(t.linked, id)
			n++
		}
	}
	return n, nil
}

type memTimeline struct{ store *memStore }

func (m memTimeline) ListByComplaint(ctx context.Context, complaintID string) ([]models.TimelineEvent, error) {
	return m.store.events(complaintID, ""), nil
}

type memEscalations struct{ store *memStore }

func (m memEscalations) ListByComplaint(ctx context.Context, complaintID string) ([]models.Escalation, error) {
	return m.store.escalationsFor(complaintID), nil
}

type memMessages struct{ store *memStore }

func (m memMessages) ListByComplaint(ctx context.Context, complaintID string, includeInternal bool) ([]models.ComplaintMessage, error) {
	var out []models.ComplaintMessage
	for _, msg := range m.store.messagesFor(complaintID) {
		if msg.Internal && !includeInternal {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

type memPredictions struct{ store *memStore }

func (m memPredictions) Latest(ctx context.Context, complaintID string) (*models.PredictionRecord, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for i := len(m.store.predictions) - 1; i >= 0; i-- {
		if m.store.predictions[i].ComplaintID == complaintID {
			record := m.store.predictions[i]
			return &record, nil
		}
	}
	return nil, sql.ErrNoRows
}

type userStub struct {
	users []models.User
}

func (u *userStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	for i := range u.users {
		if u.users[i].ID == id {
			user := u.users[i]
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (u *userStub) ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, user := range u.users {
		if user.Role == role && user.Active {
			out = append(out, user)
		}
	}
	return out, nil
}

type slaRuleStub map[models.Priority]models.SLARule

func (s slaRuleStub) FindActiveByPriority(ctx context.Context, priority models.Priority) (*models.SLARule, error) {
	rule, ok := s[priority]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rule, nil
}

type routingRuleStub map[models.Category][]models.RoutingRule

func (r routingRuleStub) ListActiveByCategory(ctx context.Context, category models.Category) ([]models.RoutingRule, error) {
	return append([]models.RoutingRule(nil), r[category]...), nil
}

type classifierStub struct {
	mu     sync.Mutex
	result classifier.Result
	calls  int
	items  []classifier.Item
}

func (c *classifierStub) Predict(ctx context.Context, item classifier.Item) classifier.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.items = append(c.items, item)
	return c.result
}

type codeStub struct{ next int }

func (c *codeStub) Next(ctx context.Context) (string, error) {
	c.next++
	return fmt.Sprintf("CMP-2024-%d", 1000+c.next), nil
}

type thresholdStub float64

func (t thresholdStub) Threshold(ctx context.Context) float64 { return float64(t) }

type attachmentStub struct {
	uploads []UploadedFile
}

func (a *attachmentStub) Upload(ctx context.Context, uploaderID string, complaintID *string, uploads []UploadedFile) ([]models.Attachment, error) {
	a.uploads = append(a.uploads, uploads...)
	out := make([]models.Attachment, len(uploads))
	for i, u := range uploads {
		out[i] = models.Attachment{ID: uuid.NewString(), ComplaintID: complaintID, UploadedBy: uploaderID, OriginalName: u.Name, MimeType: u.ContentType}
	}
	return out, nil
}

func (a *attachmentStub) ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error) {
	return nil, nil
}

type queueStub struct {
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

var testNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

const (
	reporterID  = "u-reporter"
	resolverID  = "u-resolver"
	deptAdminID = "u-dept"
	reviewerID  = "u-reviewer"
	superID     = "u-super"
)

var (
	reporter  = Actor{ID: reporterID, Role: models.RoleUser}
	resolver  = Actor{ID: resolverID, Role: models.RoleResolver, Department: "Facilities"}
	deptAdmin = Actor{ID: deptAdminID, Role: models.RoleDeptAdmin, Department: "Facilities"}
	reviewer  = Actor{ID: reviewerID, Role: models.RoleReviewer}
	superUser = Actor{ID: superID, Role: models.RoleSuperAdmin}
)

// workflow wires the complaint services over in-memory collaborators with a fixed clock.
type workflow struct {
	store       *memStore
	users       *userStub
	classifier  *classifierStub
	attachments *attachmentStub
	sla         *SLAService
	timeline    *TimelineService
	routing     *RoutingService
	prediction  *PredictionService
	complaints  *ComplaintService
	admin       *AdminComplaintService
	escalation  *EscalationService
	now         time.Time
}

func newWorkflow(t *testing.T, opts ComplaintOptions) *workflow {
	t.Helper()
	facilities := "Facilities"
	w := &workflow{
		store: newMemStore(),
		users: &userStub{users: []models.User{
			{ID: reporterID, Role: models.RoleUser, Active: true},
			{ID: resolverID, Role: models.RoleResolver, Department: &facilities, Active: true},
			{ID: deptAdminID, Role: models.RoleDeptAdmin, Department: &facilities, Active: true},
			{ID: reviewerID, Role: models.RoleReviewer, Active: true},
			{ID: superID, Role: models.RoleSuperAdmin, Active: true},
		}},
		classifier:  &classifierStub{result: classifier.Failure{Reason: "not configured"}},
		attachments: &attachmentStub{},
		now:         testNow,
	}
	clock := func() time.Time { return w.now }
	resolverRole := models.RoleResolver
	w.sla = NewSLAService(slaRuleStub{
		models.PriorityCritical: {Priority: models.PriorityCritical, AcknowledgeWithinMinutes: 30, ResolveWithinMinutes: 240, Active: true},
		models.PriorityHigh:     {Priority: models.PriorityHigh, AcknowledgeWithinMinutes: 60, ResolveWithinMinutes: 480, Active: true},
		models.PriorityMedium:   {Priority: models.PriorityMedium, AcknowledgeWithinMinutes: 240, ResolveWithinMinutes: 1440, Active: true},
		models.PriorityLow:      {Priority: models.PriorityLow, AcknowledgeWithinMinutes: 480, ResolveWithinMinutes: 4320, Active: true},
	}, clock)
	w.timeline = NewTimelineService(memTimeline{store: w.store})
	w.routing = NewRoutingService(routingRuleStub{
		models.CategoryElectrical: {{ID: "rule-electrical", Category: models.CategoryElectrical, OwnerRole: &resolverRole, CollaboratorRoles: "ROLE_DEPT_ADMIN", Active: true}},
	}, w.users, nil)
	w.prediction = NewPredictionService(PredictionDeps{
		Store:      w.store,
		Classifier: w.classifier,
		SLA:        w.sla,
		Routing:    w.routing,
		Timeline:   w.timeline,
	}, PredictionOptions{})
	w.complaints = NewComplaintService(ComplaintDeps{
		Store:       w.store,
		Codes:       &codeStub{},
		Users:       w.users,
		Timeline:    w.timeline,
		SLA:         w.sla,
		Prediction:  w.prediction,
		Thresholds:  thresholdStub(0.72),
		Attachments: w.attachments,
		Messages:    memMessages{store: w.store},
		Escalations: memEscalations{store: w.store},
		Predictions: memPredictions{store: w.store},
	}, opts)
	w.complaints.now = clock
	w.admin = NewAdminComplaintService(w.complaints, w.users, w.sla, w.timeline, nil, nil)
	w.escalation = NewEscalationService(w.store, w.sla, w.timeline, nil, EscalationConfig{Concurrency: 2}, nil)
	return w
}

// seed stores a complaint filed by the reporter in the given state.
func (w *workflow) seed(status models.ComplaintStatus, mutate func(c *models.Complaint)) *models.Complaint {
	c := &models.Complaint{
		Code:        fmt.Sprintf("CMP-2024-%d", 9000+len(w.store.complaints)),
		CreatedBy:   reporterID,
		Title:       "Light flickering",
		Description: "Corridor light flickers all night",
		Status:      status,
		Priority:    models.PriorityMedium,
		CreatedAt:   w.now,
	}
	if mutate != nil {
		mutate(c)
	}
	return w.store.put(c)
}

func successResult(severity, overall float64, labels ...classifier.Label) classifier.Success {
	return classifier.Success{
		ModelVersion:      "v1",
		OverallConfidence: floatPtr(overall),
		SeverityScore:     floatPtr(severity),
		Labels:            labels,
		Raw:               `{"ok":true}`,
	}
}

func label(name string, confidence float64) classifier.Label {
	return classifier.Label{Name: name, Confidence: floatPtr(confidence)}
}
