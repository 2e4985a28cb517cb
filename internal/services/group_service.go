package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wardenproxy/warden/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("security group not found")
	ErrGroupExists    = errors.New("security group already exists")
	ErrRuleNotFound   = errors.New("rule not found")
	ErrUnknownRuleKey = errors.New("unknown rule implementation key")
)

// knownImplementations are the implementation keys the policy engine can
// dispatch. Creating a rule with any other key is rejected up front;
// unknown keys that still reach evaluation are skipped with a warning.
var knownImplementations = map[string]bool{
	"ip-filtering":          true,
	"identity-verification": true,
	"input-validation":      true,
	"content-inspection":    true,
	"xss-sanitization":      true,
	"rate-limiting":         true,
	"caching":               true,
	"call-logging":          true,
}

// GroupService manages security groups and rules and resolves which rules
// apply to an endpoint.
type GroupService struct {
	db *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{db: db}
}

// RulesForEndpoint returns the union of rules contributed by every group
// that applies to the endpoint, through either linkage direction: groups
// referencing the endpoint by ID, and group names listed on the endpoint.
// Duplicate rule rows are kept; the policy engine dedups by implementation.
func (s *GroupService) RulesForEndpoint(ep *models.Endpoint) ([]models.Rule, error) {
	var groups []models.SecurityGroup

	err := s.db.Preload("Rules").
		Joins("JOIN security_group_endpoints sge ON sge.security_group_id = security_groups.id").
		Where("sge.endpoint_id = ?", ep.ID).
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	if len(ep.SecurityGroupRefs) > 0 {
		seen := make(map[uint]bool, len(groups))
		for _, g := range groups {
			seen[g.ID] = true
		}

		var named []models.SecurityGroup
		if err := s.db.Preload("Rules").
			Where("name IN ?", []string(ep.SecurityGroupRefs)).
			Find(&named).Error; err != nil {
			return nil, err
		}
		for _, g := range named {
			if !seen[g.ID] {
				groups = append(groups, g)
			}
		}
	}

	var rules []models.Rule
	for _, g := range groups {
		rules = append(rules, g.Rules...)
	}
	return rules, nil
}

// Create stores a new security group.
func (s *GroupService) Create(group *models.SecurityGroup) error {
	if strings.TrimSpace(group.Name) == "" {
		return errors.New("name is required")
	}
	group.UUID = uuid.NewString()

	err := s.db.Create(group).Error
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrGroupExists
	}
	return err
}

// List returns all groups with their rules preloaded.
func (s *GroupService) List() ([]models.SecurityGroup, error) {
	var groups []models.SecurityGroup
	if err := s.db.Preload("Rules").Order("name").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// GetByUUID retrieves a group with rules and endpoints preloaded.
func (s *GroupService) GetByUUID(id string) (*models.SecurityGroup, error) {
	var group models.SecurityGroup
	err := s.db.Preload("Rules").Preload("Endpoints").Where("uuid = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// Update changes a group's name and description.
func (s *GroupService) Update(id string, updates *models.SecurityGroup) (*models.SecurityGroup, error) {
	group, err := s.GetByUUID(id)
	if err != nil {
		return nil, err
	}

	group.Name = updates.Name
	group.Description = updates.Description
	if err := s.db.Save(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes a group. Rule and endpoint rows survive; only the
// associations go.
func (s *GroupService) Delete(id string) error {
	group, err := s.GetByUUID(id)
	if err != nil {
		return err
	}

	if err := s.db.Model(group).Association("Rules").Clear(); err != nil {
		return err
	}
	if err := s.db.Model(group).Association("Endpoints").Clear(); err != nil {
		return err
	}
	return s.db.Delete(group).Error
}

// AttachRule links a rule to a group by UUID.
func (s *GroupService) AttachRule(groupID, ruleID string) error {
	group, err := s.GetByUUID(groupID)
	if err != nil {
		return err
	}
	rule, err := s.GetRuleByUUID(ruleID)
	if err != nil {
		return err
	}
	return s.db.Model(group).Association("Rules").Append(rule)
}

// DetachRule unlinks a rule from a group.
func (s *GroupService) DetachRule(groupID, ruleID string) error {
	group, err := s.GetByUUID(groupID)
	if err != nil {
		return err
	}
	rule, err := s.GetRuleByUUID(ruleID)
	if err != nil {
		return err
	}
	return s.db.Model(group).Association("Rules").Delete(rule)
}

// AttachEndpoint links an endpoint to a group by UUID.
func (s *GroupService) AttachEndpoint(groupID, endpointID string) error {
	group, err := s.GetByUUID(groupID)
	if err != nil {
		return err
	}
	var ep models.Endpoint
	if err := s.db.Where("uuid = ?", endpointID).First(&ep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEndpointNotFound
		}
		return err
	}
	return s.db.Model(group).Association("Endpoints").Append(&ep)
}

// DetachEndpoint unlinks an endpoint from a group.
func (s *GroupService) DetachEndpoint(groupID, endpointID string) error {
	group, err := s.GetByUUID(groupID)
	if err != nil {
		return err
	}
	var ep models.Endpoint
	if err := s.db.Where("uuid = ?", endpointID).First(&ep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEndpointNotFound
		}
		return err
	}
	return s.db.Model(group).Association("Endpoints").Delete(&ep)
}

// CreateRule stores a new rule after validating its implementation key.
func (s *GroupService) CreateRule(rule *models.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("name is required")
	}
	if !knownImplementations[rule.Implementation] {
		return ErrUnknownRuleKey
	}
	rule.UUID = uuid.NewString()
	return s.db.Create(rule).Error
}

// ListRules returns all rules.
func (s *GroupService) ListRules() ([]models.Rule, error) {
	var rules []models.Rule
	if err := s.db.Order("name").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRuleByUUID retrieves a rule by UUID.
func (s *GroupService) GetRuleByUUID(id string) (*models.Rule, error) {
	var rule models.Rule
	if err := s.db.Where("uuid = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// UpdateRule changes a rule's fields after validating the implementation key.
func (s *GroupService) UpdateRule(id string, updates *models.Rule) (*models.Rule, error) {
	rule, err := s.GetRuleByUUID(id)
	if err != nil {
		return nil, err
	}
	if !knownImplementations[updates.Implementation] {
		return nil, ErrUnknownRuleKey
	}

	rule.Name = updates.Name
	rule.Description = updates.Description
	rule.Implementation = updates.Implementation
	if err := s.db.Save(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a rule and its group associations.
func (s *GroupService) DeleteRule(id string) error {
	rule, err := s.GetRuleByUUID(id)
	if err != nil {
		return err
	}
	if err := s.db.Exec("DELETE FROM security_group_rules WHERE rule_id = ?", rule.ID).Error; err != nil {
		return err
	}
	return s.db.Delete(rule).Error
}
