package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

const (
	reasonPrimaryCategoryMissing = "Primary category missing"
	reasonNoRoutingRuleMatched   = "No routing rule matched"
)

type routingRuleReader interface {
	ListActiveByCategory(ctx context.Context, category models.Category) ([]models.RoutingRule, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// RoutingService picks an owner and collaborators for a complaint from the routing rules.
type RoutingService struct {
	rules  routingRuleReader
	users  userDirectory
	logger *zap.Logger
}

// NewRoutingService constructs the resolver.
func NewRoutingService(rules routingRuleReader, users userDirectory, logger *zap.Logger) *RoutingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{rules: rules, users: users, logger: logger}
}

// Resolve selects the most specific matching rule that yields an active owner. Building matches
// weigh more than hostel matches; blank rule fields act as wildcards.
func (s *RoutingService) Resolve(ctx context.Context, category models.Category, hostel, building *string) (models.RoutingResolution, error) {
	if category == "" {
		return models.Unresolved(reasonPrimaryCategoryMissing), nil
	}
	rules, err := s.rules.ListActiveByCategory(ctx, category)
	if err != nil {
		return models.RoutingResolution{}, appErrors.Internal(err, "failed to load routing rules")
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return specificity(rules[i], hostel, building) > specificity(rules[j], hostel, building)
	})

	for _, rule := range rules {
		if !matches(rule.Hostel, hostel) || !matches(rule.Building, building) {
			continue
		}
		owner, err := s.resolveOwner(ctx, rule)
		if err != nil {
			return models.RoutingResolution{}, err
		}
		if owner == nil {
			s.logger.Debug("routing rule has no resolvable owner", zap.String("rule_id", rule.ID))
			continue
		}
		collaborators, err := s.resolveCollaborators(ctx, rule, owner.ID)
		if err != nil {
			return models.RoutingResolution{}, err
		}
		return models.RoutingResolution{
			Resolved:        true,
			OwnerUserID:     owner.ID,
			CollaboratorIDs: collaborators,
			Reason:          fmt.Sprintf("Matched routing rule %s", rule.ID),
			RuleID:          rule.ID,
		}, nil
	}
	return models.Unresolved(reasonNoRoutingRuleMatched), nil
}

func (s *RoutingService) resolveOwner(ctx context.Context, rule models.RoutingRule) (*models.User, error) {
	if rule.OwnerUserID != nil && strings.TrimSpace(*rule.OwnerUserID) != "" {
		user, err := s.users.FindByID(ctx, *rule.OwnerUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, appErrors.Internal(err, "failed to load routing owner")
		}
		if user.Active {
			return user, nil
		}
		return nil, nil
	}
	if rule.OwnerRole != nil {
		users, err := s.users.ListActiveByRole(ctx, *rule.OwnerRole)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load routing owner role")
		}
		if len(users) > 0 {
			return &users[0], nil
		}
	}
	return nil, nil
}

func (s *RoutingService) resolveCollaborators(ctx context.Context, rule models.RoutingRule, ownerID string) ([]string, error) {
	seen := map[string]struct{}{ownerID: {}}
	var ids []string
	for _, raw := range rule.CollaboratorRoleList() {
		role, ok := models.ParseUserRole(raw)
		if !ok {
			s.logger.Warn("skipping unknown collaborator role", zap.String("rule_id", rule.ID), zap.String("role", raw))
			continue
		}
		users, err := s.users.ListActiveByRole(ctx, role)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load collaborators")
		}
		for _, u := range users {
			if _, dup := seen[u.ID]; dup {
				continue
			}
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func specificity(rule models.RoutingRule, hostel, building *string) int {
	score := 0
	if !blank(rule.Building) && matches(rule.Building, building) {
		score += 20
	}
	if !blank(rule.Hostel) && matches(rule.Hostel, hostel) {
		score += 10
	}
	return score
}

// matches treats a blank rule value as a wildcard; a blank actual value only matches a wildcard.
func matches(ruleValue, actual *string) bool {
	if blank(ruleValue) {
		return true
	}
	if blank(actual) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*ruleValue), strings.TrimSpace(*actual))
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}
