package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
)

const (
	defaultSweepConcurrency = 4
	defaultSweepBatchSize   = 500
)

type escalationStore interface {
	FindOverdueIDs(ctx context.Context, deadline repository.OverdueDeadline, level models.EscalationLevel, statuses []models.ComplaintStatus, now time.Time, limit int) ([]string, error)
	WithComplaint(ctx context.Context, id string, fn repository.ComplaintFn) error
}

// escalationRule describes one automatic escalation: which deadline, which statuses, who hears about it.
type escalationRule struct {
	level    models.EscalationLevel
	deadline repository.OverdueDeadline
	statuses []models.ComplaintStatus
	target   models.UserRole
	reason   string
	overdue  func(sla *SLAService, c *models.Complaint, now time.Time) bool
}

var escalationRules = []escalationRule{
	{
		level:    models.EscalationAcknowledgeOverdue,
		deadline: repository.DeadlineAcknowledge,
		statuses: []models.ComplaintStatus{models.StatusNew, models.StatusReopened},
		target:   models.RoleDeptAdmin,
		reason:   "Acknowledge SLA breached",
		overdue:  (*SLAService).IsAcknowledgeOverdue,
	},
	{
		level:    models.EscalationResolveOverdue,
		deadline: repository.DeadlineResolve,
		statuses: []models.ComplaintStatus{
			models.StatusNew, models.StatusAcknowledged, models.StatusInProgress, models.StatusNeedsInfo, models.StatusReopened,
		},
		target:  models.RoleSuperAdmin,
		reason:  "Resolve SLA breached",
		overdue: (*SLAService).IsResolveOverdue,
	},
}

// SweepResult summarises one escalation sweep.
type SweepResult struct {
	Checked   int
	Escalated int
	Failed    int
}

// EscalationConfig tunes the sweep.
type EscalationConfig struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
}

// EscalationService raises automatic escalations for complaints past their SLA deadlines.
type EscalationService struct {
	store    escalationStore
	sla      *SLAService
	timeline *TimelineService
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      EscalationConfig
}

// NewEscalationService constructs the sweeper.
func NewEscalationService(store escalationStore, sla *SLAService, timeline *TimelineService, metrics *MetricsService, cfg EscalationConfig, logger *zap.Logger) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSweepConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	return &EscalationService{store: store, sla: sla, timeline: timeline, metrics: metrics, logger: logger, cfg: cfg}
}

// Start runs a sweep every interval until ctx is cancelled. The next sweep starts only after the
// previous one finished.
func (s *EscalationService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("sla sweep incomplete", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("sla escalation scheduler started", zap.Duration("interval", s.cfg.Interval))
}

// Sweep escalates every overdue complaint once per level. Each complaint is handled in its own
// transaction under its row lock; a failure on one complaint is logged and counted, never fatal.
func (s *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	now := s.sla.Now()
	var (
		result SweepResult
		mu     sync.Mutex
	)
	defer func() {
		s.metrics.ObserveSweep(time.Since(start), result.Failed)
	}()

	for _, rule := range escalationRules {
		ids, err := s.store.FindOverdueIDs(ctx, rule.deadline, rule.level, rule.statuses, now, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("find %s candidates: %w", rule.level, err)
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, id := range ids {
			id := id
			rule := rule
			g.Go(func() error {
				raised, err := s.escalate(ctx, id, rule, now)
				mu.Lock()
				defer mu.Unlock()
				result.Checked++
				switch {
				case err != nil:
					result.Failed++
					s.logger.Error("failed to escalate complaint", zap.String("complaint_id", id), zap.String("level", string(rule.level)), zap.Error(err))
				case raised:
					result.Escalated++
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if result.Escalated > 0 || result.Failed > 0 {
		s.logger.Info("sla sweep finished", zap.Int("checked", result.Checked), zap.Int("escalated", result.Escalated), zap.Int("failed", result.Failed))
	}
	return result, nil
}

// escalate re-checks the deadline and the existing escalations under the row lock, so concurrent or
// repeated sweeps raise at most one escalation per complaint and level.
func (s *EscalationService) escalate(ctx context.Context, id string, rule escalationRule, now time.Time) (bool, error) {
	raised := false
	err := s.store.WithComplaint(ctx, id, func(ctx context.Context, tx repository.ComplaintTx, c *models.Complaint) error {
		if !rule.overdue(s.sla, c, now) {
			return nil
		}
		exists, err := tx.EscalationExists(ctx, c.ID, rule.level)
		if err != nil || exists {
			return err
		}
		target := rule.target
		escalation := &models.Escalation{
			ComplaintID:     c.ID,
			Level:           rule.level,
			Reason:          rule.reason,
			EscalatedToRole: &target,
			Automatic:       true,
		}
		if err := tx.InsertEscalation(ctx, escalation); err != nil {
			return err
		}
		if err := s.timeline.Record(ctx, tx, c.ID, models.TimelineEscalated, "", string(rule.level), nil, rule.reason); err != nil {
			return err
		}
		raised = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if raised {
		s.metrics.RecordEscalation(string(rule.level), true)
	}
	return raised, nil
}
