package service

import (
	"fmt"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

var allowedTransitions = map[models.ComplaintStatus]map[models.ComplaintStatus]struct{}{
	models.StatusNew:          statusSet(models.StatusAcknowledged, models.StatusNeedsInfo),
	models.StatusAcknowledged: statusSet(models.StatusInProgress, models.StatusNeedsInfo, models.StatusResolved),
	models.StatusInProgress:   statusSet(models.StatusNeedsInfo, models.StatusResolved),
	models.StatusNeedsInfo:    statusSet(models.StatusAcknowledged, models.StatusInProgress),
	models.StatusResolved:     statusSet(models.StatusClosed, models.StatusReopened),
	models.StatusClosed:       statusSet(models.StatusReopened),
	models.StatusReopened:     statusSet(models.StatusAcknowledged, models.StatusInProgress, models.StatusNeedsInfo),
}

func statusSet(statuses ...models.ComplaintStatus) map[models.ComplaintStatus]struct{} {
	out := make(map[models.ComplaintStatus]struct{}, len(statuses))
	for _, s := range statuses {
		out[s] = struct{}{}
	}
	return out
}

// ValidateStatusTransition checks a lifecycle move. Staying in the same state is always allowed.
func ValidateStatusTransition(current, target models.ComplaintStatus, hasResolutionNote bool) error {
	if current == target {
		return nil
	}
	if _, ok := allowedTransitions[current][target]; !ok {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("invalid status transition: %s -> %s", current, target))
	}
	if target == models.StatusClosed && current != models.StatusResolved {
		return appErrors.Clone(appErrors.ErrConflict, "complaint can be closed only after it is resolved")
	}
	if target == models.StatusResolved && !hasResolutionNote {
		return appErrors.Clone(appErrors.ErrConflict, "resolution note is required before resolving")
	}
	return nil
}

func parseStatus(raw string) (models.ComplaintStatus, error) {
	status, ok := models.ParseComplaintStatus(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
	}
	return status, nil
}
