package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

func markOverdue(c *models.Complaint) {
	ack := testNow.Add(-2 * time.Hour)
	resolve := testNow.Add(-time.Hour)
	c.AcknowledgeDueAt = &ack
	c.ResolveDueAt = &resolve
}

func TestSweepEscalatesOncePerLevel(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusNew, markOverdue)

	result, err := w.escalation.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Escalated)
	assert.Equal(t, 0, result.Failed)

	escalations := w.store.escalationsFor(c.ID)
	require.Len(t, escalations, 2)
	targets := map[models.EscalationLevel]models.UserRole{}
	for _, e := range escalations {
		assert.True(t, e.Automatic)
		require.NotNil(t, e.EscalatedToRole)
		targets[e.Level] = *e.EscalatedToRole
	}
	assert.Equal(t, models.RoleDeptAdmin, targets[models.EscalationAcknowledgeOverdue])
	assert.Equal(t, models.RoleSuperAdmin, targets[models.EscalationResolveOverdue])

	result, err = w.escalation.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Len(t, w.store.escalationsFor(c.ID), 2)
	assert.Len(t, w.store.events(c.ID, models.TimelineEscalated), 2)
}

func TestSweepSkipsAcknowledgedAndResolved(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	acknowledged := w.seed(models.StatusAcknowledged, markOverdue)
	resolved := w.seed(models.StatusResolved, markOverdue)

	result, err := w.escalation.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	escalations := w.store.escalationsFor(acknowledged.ID)
	require.Len(t, escalations, 1)
	assert.Equal(t, models.EscalationResolveOverdue, escalations[0].Level)
	assert.Empty(t, w.store.escalationsFor(resolved.ID))
}

func TestManualEscalationPreemptsSweepAtSameLevel(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	c := w.seed(models.StatusInProgress, markOverdue)
	w.store.escalations = append(w.store.escalations, models.Escalation{ComplaintID: c.ID, Level: models.EscalationResolveOverdue, Reason: "manual"})

	result, err := w.escalation.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Escalated)

	escalations := w.store.escalationsFor(c.ID)
	require.Len(t, escalations, 1)
	assert.False(t, escalations[0].Automatic)
}

func TestSweepReachesComplaintsBeyondOneBatch(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	sweeper := NewEscalationService(w.store, w.sla, w.timeline, nil, EscalationConfig{BatchSize: 2, Concurrency: 1}, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, w.seed(models.StatusInProgress, markOverdue).ID)
	}

	first, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Escalated)

	second, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Escalated)

	third, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, third)

	for _, id := range ids {
		escalations := w.store.escalationsFor(id)
		require.Len(t, escalations, 1, "complaint %s", id)
		assert.Equal(t, models.EscalationResolveOverdue, escalations[0].Level)
	}
}

func TestConcurrentSweepsRaiseOneEscalationPerLevel(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, w.seed(models.StatusReopened, markOverdue).ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.escalation.Sweep(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Len(t, w.store.escalationsFor(id), 2)
	}
}

func TestSweepNothingDue(t *testing.T) {
	w := newWorkflow(t, ComplaintOptions{})
	w.seed(models.StatusNew, func(c *models.Complaint) {
		due := testNow.Add(time.Hour)
		c.AcknowledgeDueAt = &due
		c.ResolveDueAt = &due
	})

	result, err := w.escalation.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}
