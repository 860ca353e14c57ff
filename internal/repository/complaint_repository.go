package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
)

const complaintColumns = `id, code, created_by, title, description, hostel, building, room, preferred_visit_slot, anonymous,
status, priority, needs_review, review_reason, owner_user_id, acknowledge_due_at, resolve_due_at, resolved_at, closed_at,
reopened_count, feedback_rating, feedback_comment, feedback_at, created_at, updated_at`

const insertComplaintQuery = `INSERT INTO complaints (` + complaintColumns + `)
VALUES (:id, :code, :created_by, :title, :description, :hostel, :building, :room, :preferred_visit_slot, :anonymous,
:status, :priority, :needs_review, :review_reason, :owner_user_id, :acknowledge_due_at, :resolve_due_at, :resolved_at, :closed_at,
:reopened_count, :feedback_rating, :feedback_comment, :feedback_at, :created_at, :updated_at)`

const updateComplaintQuery = `UPDATE complaints SET title = :title, description = :description, hostel = :hostel,
building = :building, room = :room, preferred_visit_slot = :preferred_visit_slot, anonymous = :anonymous,
status = :status, priority = :priority, needs_review = :needs_review, review_reason = :review_reason,
owner_user_id = :owner_user_id, acknowledge_due_at = :acknowledge_due_at, resolve_due_at = :resolve_due_at,
resolved_at = :resolved_at, closed_at = :closed_at, reopened_count = :reopened_count,
feedback_rating = :feedback_rating, feedback_comment = :feedback_comment, feedback_at = :feedback_at,
updated_at = :updated_at
WHERE id = :id`

// OverdueDeadline selects which SLA deadline an overdue query inspects.
type OverdueDeadline string

const (
	DeadlineAcknowledge OverdueDeadline = "acknowledge_due_at"
	DeadlineResolve     OverdueDeadline = "resolve_due_at"
)

// ComplaintFn mutates a locked complaint aggregate inside its transaction.
type ComplaintFn func(ctx context.Context, tx ComplaintTx, complaint *models.Complaint) error

// ComplaintRepository persists the complaint aggregate (row plus owned categories and assignments).
type ComplaintRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewComplaintRepository constructs the repository.
func NewComplaintRepository(db *sqlx.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new complaint with its children and runs fn in the same transaction.
func (r *ComplaintRepository) Create(ctx context.Context, complaint *models.Complaint, fn func(ctx context.Context, tx ComplaintTx) error) (err error) {
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	now := r.now()
	if complaint.CreatedAt.IsZero() {
		complaint.CreatedAt = now
	}
	complaint.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complaint transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertComplaintQuery, complaint); err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}
	if err = replaceChildren(ctx, tx, complaint); err != nil {
		return err
	}
	if fn != nil {
		if err = fn(ctx, &complaintTx{tx: tx, now: r.now}); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complaint: %w", err)
	}
	return nil
}

// WithComplaint locks the complaint row, loads the aggregate, runs fn and persists the result, all in one
// transaction. Children are rewritten only when fn changed them. Concurrent callers on the same complaint
// serialize on the row lock; different complaints proceed independently.
func (r *ComplaintRepository) WithComplaint(ctx context.Context, id string, fn ComplaintFn) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complaint transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var complaint models.Complaint
	if err = tx.GetContext(ctx, &complaint, "SELECT "+complaintColumns+" FROM complaints WHERE id = $1 FOR UPDATE", id); err != nil {
		return fmt.Errorf("lock complaint: %w", err)
	}
	if err = loadChildren(ctx, tx, &complaint); err != nil {
		return err
	}
	categories := append([]models.ComplaintCategory(nil), complaint.Categories...)
	assignments := append([]models.ComplaintAssignment(nil), complaint.Assignments...)

	if err = fn(ctx, &complaintTx{tx: tx, now: r.now}, &complaint); err != nil {
		return err
	}

	complaint.UpdatedAt = r.now()
	if _, err = tx.NamedExecContext(ctx, updateComplaintQuery, &complaint); err != nil {
		return fmt.Errorf("update complaint: %w", err)
	}
	if !sameCategories(categories, complaint.Categories) {
		if err = replaceCategories(ctx, tx, &complaint); err != nil {
			return err
		}
	}
	if !sameAssignments(assignments, complaint.Assignments) {
		if err = replaceAssignments(ctx, tx, &complaint); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complaint: %w", err)
	}
	return nil
}

// FindByID loads the aggregate without locking. Returns sql.ErrNoRows when absent.
func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	return r.findBy(ctx, "id", id)
}

// FindByCode loads the aggregate by its public code. Returns sql.ErrNoRows when absent.
func (r *ComplaintRepository) FindByCode(ctx context.Context, code string) (*models.Complaint, error) {
	return r.findBy(ctx, "code", strings.ToUpper(strings.TrimSpace(code)))
}

func (r *ComplaintRepository) findBy(ctx context.Context, column, value string) (*models.Complaint, error) {
	var complaint models.Complaint
	query := fmt.Sprintf("SELECT %s FROM complaints WHERE %s = $1", complaintColumns, column)
	if err := r.db.GetContext(ctx, &complaint, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find complaint: %w", err)
	}
	if err := loadChildren(ctx, r.db, &complaint); err != nil {
		return nil, err
	}
	return &complaint, nil
}

const summaryColumns = `c.id, c.code, c.title, c.status, c.priority, c.needs_review, c.review_reason,
(SELECT cc.category FROM complaint_categories cc WHERE cc.complaint_id = c.id AND cc.is_primary LIMIT 1) AS primary_category,
c.owner_user_id, c.resolve_due_at, c.created_at`

// List returns complaint summaries matching the filter, newest first, with the total count.
func (r *ComplaintRepository) List(ctx context.Context, filter models.ComplaintFilter) ([]dto.ComplaintSummary, int, error) {
	baseQuery := `FROM complaints c WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		conditions = append(conditions, fmt.Sprintf("c.priority = $%d", len(args)))
	}
	if filter.NeedsReview != nil {
		args = append(args, *filter.NeedsReview)
		conditions = append(conditions, fmt.Sprintf("c.needs_review = $%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM complaint_categories f WHERE f.complaint_id = c.id AND f.category = $%d)", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("c.created_by = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		clause := fmt.Sprintf("c.owner_user_id = $%d OR EXISTS (SELECT 1 FROM complaint_assignments a WHERE a.complaint_id = c.id AND a.user_id = $%d)", len(args), len(args))
		if filter.Department != "" {
			args = append(args, filter.Department)
			clause += fmt.Sprintf(" OR EXISTS (SELECT 1 FROM users u WHERE u.id = c.owner_user_id AND u.department = $%d)", len(args))
		}
		conditions = append(conditions, "("+clause+")")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.code) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY c.created_at DESC, c.id DESC LIMIT %d OFFSET %d", summaryColumns, baseQuery, pageSize, (page-1)*pageSize)

	var items []dto.ComplaintSummary
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}
	return items, total, nil
}

// ListReviewQueue returns complaints awaiting manual review, newest first.
func (r *ComplaintRepository) ListReviewQueue(ctx context.Context, page, pageSize int) ([]dto.ComplaintSummary, int, error) {
	const where = `FROM complaints c WHERE c.needs_review = TRUE AND c.status IN ('NEW', 'REOPENED', 'ACKNOWLEDGED')`
	page, pageSize = normalizePage(page, pageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY c.created_at DESC, c.id DESC LIMIT %d OFFSET %d", summaryColumns, where, pageSize, (page-1)*pageSize)

	var items []dto.ComplaintSummary
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, 0, fmt.Errorf("list review queue: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+where); err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}
	return items, total, nil
}

// FindOverdueIDs returns ids of complaints in one of statuses whose deadline passed before now and
// that carry no escalation of level yet, oldest deadline first.
func (r *ComplaintRepository) FindOverdueIDs(ctx context.Context, deadline OverdueDeadline, level models.EscalationLevel, statuses []models.ComplaintStatus, now time.Time, limit int) ([]string, error) {
	if deadline != DeadlineAcknowledge && deadline != DeadlineResolve {
		return nil, fmt.Errorf("unsupported deadline column %q", deadline)
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	args := make([]interface{}, 0, len(statuses)+2)
	args = append(args, now, level)
	marks := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		marks[i] = fmt.Sprintf("$%d", i+3)
	}
	query := fmt.Sprintf(`SELECT id FROM complaints c
WHERE c.%[1]s IS NOT NULL AND c.%[1]s < $1 AND c.status IN (%[2]s)
AND NOT EXISTS (SELECT 1 FROM escalations e WHERE e.complaint_id = c.id AND e.level = $2)
ORDER BY c.%[1]s ASC, c.id ASC LIMIT %[3]d`, deadline, strings.Join(marks, ", "), limit)

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("find overdue complaints: %w", err)
	}
	return ids, nil
}

// SLAReport returns compliance rows for complaints created within the optional window.
func (r *ComplaintRepository) SLAReport(ctx context.Context, from, to *time.Time) ([]dto.SLAReportRow, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT c.code, c.title, c.status, c.priority, c.created_at, c.acknowledge_due_at, c.resolve_due_at, c.resolved_at,
EXISTS (SELECT 1 FROM escalations e WHERE e.complaint_id = c.id AND e.level = 'ACKNOWLEDGE_OVERDUE') AS ack_escalated,
EXISTS (SELECT 1 FROM escalations e WHERE e.complaint_id = c.id AND e.level = 'RESOLVE_OVERDUE') AS resolve_escalated
FROM complaints c WHERE 1=1`)
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		fmt.Fprintf(&query, " AND c.created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		fmt.Fprintf(&query, " AND c.created_at < $%d", len(args))
	}
	query.WriteString(" ORDER BY c.created_at ASC, c.id ASC")

	var rows []dto.SLAReportRow
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, fmt.Errorf("sla report: %w", err)
	}
	return rows, nil
}

func loadChildren(ctx context.Context, q sqlx.QueryerContext, complaint *models.Complaint) error {
	const categoriesQuery = `SELECT id, complaint_id, category, is_primary, confidence, position
FROM complaint_categories WHERE complaint_id = $1 ORDER BY position ASC`
	const assignmentsQuery = `SELECT id, complaint_id, user_id, role, position
FROM complaint_assignments WHERE complaint_id = $1 ORDER BY position ASC`

	complaint.Categories = nil
	complaint.Assignments = nil
	if err := sqlx.SelectContext(ctx, q, &complaint.Categories, categoriesQuery, complaint.ID); err != nil {
		return fmt.Errorf("load complaint categories: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, &complaint.Assignments, assignmentsQuery, complaint.ID); err != nil {
		return fmt.Errorf("load complaint assignments: %w", err)
	}
	return nil
}

func replaceChildren(ctx context.Context, tx *sqlx.Tx, complaint *models.Complaint) error {
	if err := replaceCategories(ctx, tx, complaint); err != nil {
		return err
	}
	return replaceAssignments(ctx, tx, complaint)
}

func replaceCategories(ctx context.Context, tx *sqlx.Tx, complaint *models.Complaint) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM complaint_categories WHERE complaint_id = $1`, complaint.ID); err != nil {
		return fmt.Errorf("clear complaint categories: %w", err)
	}
	const insert = `INSERT INTO complaint_categories (id, complaint_id, category, is_primary, confidence, position)
VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range complaint.Categories {
		cat := &complaint.Categories[i]
		if cat.ID == "" {
			cat.ID = uuid.NewString()
		}
		cat.ComplaintID = complaint.ID
		cat.Position = i
		if _, err := tx.ExecContext(ctx, insert, cat.ID, cat.ComplaintID, cat.Category, cat.IsPrimary, cat.Confidence, cat.Position); err != nil {
			return fmt.Errorf("insert complaint category: %w", err)
		}
	}
	return nil
}

func replaceAssignments(ctx context.Context, tx *sqlx.Tx, complaint *models.Complaint) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM complaint_assignments WHERE complaint_id = $1`, complaint.ID); err != nil {
		return fmt.Errorf("clear complaint assignments: %w", err)
	}
	const insert = `INSERT INTO complaint_assignments (id, complaint_id, user_id, role, position)
VALUES ($1, $2, $3, $4, $5)`
	for i := range complaint.Assignments {
		a := &complaint.Assignments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.ComplaintID = complaint.ID
		a.Position = i
		if _, err := tx.ExecContext(ctx, insert, a.ID, a.ComplaintID, a.UserID, a.Role, a.Position); err != nil {
			return fmt.Errorf("insert complaint assignment: %w", err)
		}
	}
	return nil
}

func sameCategories(a, b []models.ComplaintCategory) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Category != b[i].Category || a[i].IsPrimary != b[i].IsPrimary || a[i].Confidence != b[i].Confidence {
			return false
		}
	}
	return true
}

func sameAssignments(a, b []models.ComplaintAssignment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UserID != b[i].UserID || a[i].Role != b[i].Role {
			return false
		}
	}
	return true
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
