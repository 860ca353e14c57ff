package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

const (
	thresholdSourceSettings = "settings"
	thresholdSourceDefault  = "default"
)

type settingStore interface {
	Get(ctx context.Context, key string) (*models.AppSetting, error)
	Upsert(ctx context.Context, setting *models.AppSetting) error
}

type routingRuleStore interface {
	List(ctx context.Context) ([]models.RoutingRule, error)
	FindByID(ctx context.Context, id string) (*models.RoutingRule, error)
	Create(ctx context.Context, rule *models.RoutingRule) error
	Update(ctx context.Context, rule *models.RoutingRule) error
	Delete(ctx context.Context, id string) error
}

type slaRuleStore interface {
	List(ctx context.Context) ([]models.SLARule, error)
	Upsert(ctx context.Context, rule *models.SLARule) error
}

// SettingsService manages the runtime prediction threshold and the routing and SLA rule tables.
type SettingsService struct {
	settings         settingStore
	routingRules     routingRuleStore
	slaRules         slaRuleStore
	users            userDirectory
	cache            *CacheService
	defaultThreshold float64
	logger           *zap.Logger
	validator        *validator.Validate
}

// NewSettingsService constructs the service. defaultThreshold applies until a threshold is stored.
func NewSettingsService(settings settingStore, routingRules routingRuleStore, slaRules slaRuleStore, users userDirectory, cache *CacheService, defaultThreshold float64, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{
		settings:         settings,
		routingRules:     routingRules,
		slaRules:         slaRules,
		users:            users,
		cache:            cache,
		defaultThreshold: defaultThreshold,
		logger:           logger,
		validator:        validator.New(),
	}
}

// Threshold returns the confidence threshold in force, falling back to the configured default when no
// valid value is stored or the store is unreachable.
func (s *SettingsService) Threshold(ctx context.Context) float64 {
	resp, err := s.GetThreshold(ctx)
	if err != nil {
		s.logger.Warn("using default prediction threshold", zap.Error(err))
		return s.defaultThreshold
	}
	return resp.Threshold
}

// GetThreshold returns the threshold and where it came from.
func (s *SettingsService) GetThreshold(ctx context.Context) (*dto.ThresholdResponse, error) {
	var cached dto.ThresholdResponse
	if hit, _ := s.cache.Get(ctx, cacheKeyThreshold, &cached); hit {
		return &cached, nil
	}

	resp := &dto.ThresholdResponse{Threshold: s.defaultThreshold, Source: thresholdSourceDefault}
	stored, err := s.settings.Get(ctx, models.SettingPredictionThreshold)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load prediction threshold")
	default:
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(stored.Value), 64)
		if parseErr != nil || value < 0 || value > 1 {
			s.logger.Warn("ignoring invalid stored prediction threshold", zap.String("value", stored.Value))
		} else {
			resp = &dto.ThresholdResponse{Threshold: value, Source: thresholdSourceSettings}
		}
	}
	_ = s.cache.Set(ctx, cacheKeyThreshold, resp, 0)
	return resp, nil
}

// UpdateThreshold stores a new threshold in [0,1].
func (s *SettingsService) UpdateThreshold(ctx context.Context, actor Actor, req dto.UpdateThresholdRequest) (*dto.ThresholdResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "threshold must be between 0 and 1")
	}
	setting := &models.AppSetting{
		Key:       models.SettingPredictionThreshold,
		Value:     strconv.FormatFloat(*req.Threshold, 'f', -1, 64),
		UpdatedBy: actor.idPtr(),
	}
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Internal(err, "failed to store prediction threshold")
	}
	_ = s.cache.Delete(ctx, cacheKeyThreshold)
	s.logger.Info("prediction threshold updated", zap.Float64("threshold", *req.Threshold), zap.String("actor_id", actor.ID))
	return &dto.ThresholdResponse{Threshold: *req.Threshold, Source: thresholdSourceSettings}, nil
}

// ListRoutingRules returns every routing rule.
func (s *SettingsService) ListRoutingRules(ctx context.Context) ([]models.RoutingRule, error) {
	rules, err := s.routingRules.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list routing rules")
	}
	if rules == nil {
		rules = []models.RoutingRule{}
	}
	return rules, nil
}

// CreateRoutingRule adds a routing rule.
func (s *SettingsService) CreateRoutingRule(ctx context.Context, req dto.RoutingRuleRequest) (*models.RoutingRule, error) {
	rule, err := s.buildRoutingRule(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.routingRules.Create(ctx, rule); err != nil {
		return nil, appErrors.Internal(err, "failed to create routing rule")
	}
	return rule, nil
}

// UpdateRoutingRule replaces a routing rule.
func (s *SettingsService) UpdateRoutingRule(ctx context.Context, id string, req dto.RoutingRuleRequest) (*models.RoutingRule, error) {
	existing, err := s.routingRules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "routing rule not found")
		}
		return nil, appErrors.Internal(err, "failed to load routing rule")
	}
	rule, err := s.buildRoutingRule(ctx, req)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	if err := s.routingRules.Update(ctx, rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "routing rule not found")
		}
		return nil, appErrors.Internal(err, "failed to update routing rule")
	}
	return rule, nil
}

// DeleteRoutingRule removes a routing rule.
func (s *SettingsService) DeleteRoutingRule(ctx context.Context, id string) error {
	if err := s.routingRules.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "routing rule not found")
		}
		return appErrors.Internal(err, "failed to delete routing rule")
	}
	return nil
}

// ListSLARules returns the SLA table.
func (s *SettingsService) ListSLARules(ctx context.Context) ([]models.SLARule, error) {
	rules, err := s.slaRules.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list SLA rules")
	}
	if rules == nil {
		rules = []models.SLARule{}
	}
	return rules, nil
}

// UpsertSLARule installs the rule for a priority. Existing complaints keep their deadlines.
func (s *SettingsService) UpsertSLARule(ctx context.Context, req dto.SLARuleRequest) (*models.SLARule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid SLA rule payload")
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", req.Priority))
	}
	rule := &models.SLARule{
		Priority:                 priority,
		AcknowledgeWithinMinutes: req.AcknowledgeWithinMinutes,
		ResolveWithinMinutes:     req.ResolveWithinMinutes,
	}
	if err := s.slaRules.Upsert(ctx, rule); err != nil {
		return nil, appErrors.Internal(err, "failed to store SLA rule")
	}
	return rule, nil
}

func (s *SettingsService) buildRoutingRule(ctx context.Context, req dto.RoutingRuleRequest) (*models.RoutingRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid routing rule payload")
	}
	category, ok := models.ParseCategory(req.Category)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}
	rule := &models.RoutingRule{
		Category: category,
		Hostel:   trimToNil(req.Hostel),
		Building: trimToNil(req.Building),
		Active:   true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if raw := strings.TrimSpace(deref(req.OwnerRole)); raw != "" {
		role, ok := models.ParseUserRole(raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown owner role %q", raw))
		}
		rule.OwnerRole = &role
	}
	if ownerID := trimToNil(req.OwnerUserID); ownerID != nil {
		if _, err := s.users.FindByID(ctx, *ownerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "owner user not found")
			}
			return nil, appErrors.Internal(err, "failed to load owner user")
		}
		rule.OwnerUserID = ownerID
	}
	if rule.OwnerRole == nil && rule.OwnerUserID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner_role or owner_user_id is required")
	}
	roles := make([]string, 0, len(req.CollaboratorRoles))
	for _, raw := range req.CollaboratorRoles {
		role, ok := models.ParseUserRole(raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown collaborator role %q", raw))
		}
		roles = append(roles, string(role))
	}
	rule.CollaboratorRoles = strings.Join(roles, ",")
	return rule, nil
}
