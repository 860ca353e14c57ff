package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/service"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

type settingsService interface {
	GetThreshold(ctx context.Context) (*dto.ThresholdResponse, error)
	UpdateThreshold(ctx context.Context, actor service.Actor, req dto.UpdateThresholdRequest) (*dto.ThresholdResponse, error)
	ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error)
	CreateRoutingRule(ctx context.Context, req dto.RoutingRuleRequest) (*models.RoutingRule, error)
	UpdateRoutingRule(ctx context.Context, id string, req dto.RoutingRuleRequest) (*models.RoutingRule, error)
	DeleteRoutingRule(ctx context.Context, id string) error
	ListSLARules(ctx context.Context) ([]models.SLARule, error)
	UpsertSLARule(ctx context.Context, req dto.SLARuleRequest) (*models.SLARule, error)
}

// SettingsHandler exposes the admin settings endpoints.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler builds a new handler.
func NewSettingsHandler(svc settingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// GetThreshold godoc
// @Summary Current prediction threshold
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/settings/threshold [get]
func (h *SettingsHandler) GetThreshold(c *gin.Context) {
	resp, err := h.service.GetThreshold(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// UpdateThreshold godoc
// @Summary Set the prediction threshold
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.UpdateThresholdRequest true "Threshold in [0,1]"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/settings/threshold [put]
func (h *SettingsHandler) UpdateThreshold(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req dto.UpdateThresholdRequest
	if !bindJSON(c, &req, "invalid threshold payload") {
		return
	}
	resp, err := h.service.UpdateThreshold(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// ListRoutingRules godoc
// @Summary List routing rules
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/routing-rules [get]
func (h *SettingsHandler) ListRoutingRules(c *gin.Context) {
	rules, err := h.service.ListRoutingRules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateRoutingRule godoc
// @Summary Create a routing rule
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.RoutingRuleRequest true "Rule"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/routing-rules [post]
func (h *SettingsHandler) CreateRoutingRule(c *gin.Context) {
	var req dto.RoutingRuleRequest
	if !bindJSON(c, &req, "invalid routing rule payload") {
		return
	}
	rule, err := h.service.CreateRoutingRule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// UpdateRoutingRule godoc
// @Summary Replace a routing rule
// @Tags Settings
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body dto.RoutingRuleRequest true "Rule"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/routing-rules/{id} [put]
func (h *SettingsHandler) UpdateRoutingRule(c *gin.Context) {
	var req dto.RoutingRuleRequest
	if !bindJSON(c, &req, "invalid routing rule payload") {
		return
	}
	rule, err := h.service.UpdateRoutingRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeleteRoutingRule godoc
// @Summary Delete a routing rule
// @Tags Settings
// @Param id path string true "Rule ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/routing-rules/{id} [delete]
func (h *SettingsHandler) DeleteRoutingRule(c *gin.Context) {
	if err := h.service.DeleteRoutingRule(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSLARules godoc
// @Summary List SLA rules
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/sla-rules [get]
func (h *SettingsHandler) ListSLARules(c *gin.Context) {
	rules, err := h.service.ListSLARules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// UpsertSLARule godoc
// @Summary Set the SLA rule for a priority
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.SLARuleRequest true "Rule"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/sla-rules [put]
func (h *SettingsHandler) UpsertSLARule(c *gin.Context) {
	var req dto.SLARuleRequest
	if !bindJSON(c, &req, "invalid SLA rule payload") {
		return
	}
	rule, err := h.service.UpsertSLARule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}
