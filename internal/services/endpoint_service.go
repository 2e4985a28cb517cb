package services

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/metrics"
	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/policy"
)

var (
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrEndpointExists   = errors.New("endpoint already exists")
)

// RequestShape carries the parameter names observed on a request, used to
// populate a newly discovered endpoint's declared shape.
type RequestShape struct {
	Query   []string
	Headers []string
	Path    []string
	Body    []string
}

// EndpointService is the endpoint registry: it resolves inbound requests to
// registered endpoints and auto-registers unseen ones.
type EndpointService struct {
	db *gorm.DB
}

func NewEndpointService(db *gorm.DB) *EndpointService {
	return &EndpointService{db: db}
}

// Resolve finds the endpoint for (method, path). It first attempts an exact
// match, then a templated match where {param} segments act as single-segment
// wildcards. Returns ErrEndpointNotFound when neither matches.
func (s *EndpointService) Resolve(method, path string) (*models.Endpoint, error) {
	method = strings.ToUpper(method)

	var ep models.Endpoint
	err := s.db.Where("path = ? AND method = ?", path, method).First(&ep).Error
	if err == nil {
		return &ep, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Templated fallback: only endpoints with parameter segments can match
	// a path they were not stored under.
	var candidates []models.Endpoint
	if err := s.db.Where("method = ? AND path LIKE ?", method, "%{%").Find(&candidates).Error; err != nil {
		return nil, err
	}

	segs := strings.Count(path, "/")
	for i := range candidates {
		if strings.Count(candidates[i].Path, "/") != segs {
			continue
		}
		if templateRegexp(candidates[i].Path).MatchString(path) {
			return &candidates[i], nil
		}
	}

	return nil, ErrEndpointNotFound
}

// Observe records a completed request against the registry. A matching
// endpoint gets its hit counters updated; an unseen (method, path) with a
// non-error status is auto-registered with its shape learned from the
// request. Policy fields set via the management API are never overwritten.
func (s *EndpointService) Observe(method, path string, shape RequestShape, status int) (*models.Endpoint, error) {
	method = strings.ToUpper(method)

	ep, err := s.Resolve(method, path)
	if err == nil {
		return ep, s.recordHit(ep, status)
	}
	if !errors.Is(err, ErrEndpointNotFound) {
		return nil, err
	}

	if status >= 400 {
		// Never learn endpoints from failing traffic.
		return nil, ErrEndpointNotFound
	}

	created := models.Endpoint{
		UUID:         uuid.NewString(),
		Path:         TemplatePath(path),
		Method:       method,
		Description:  "Auto-registered endpoint",
		QueryParams:  shape.Query,
		HeaderParams: shape.Headers,
		PathParams:   shape.Path,
		BodyParams:   shape.Body,
		IsNew:        true,
	}
	created.RecordHit(status)

	// Concurrent first observations race to insert the same identity; the
	// unique (path, method) index turns the loser's insert into a no-op and
	// it falls back to updating the winner's record.
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&created)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := s.Resolve(method, path)
		if err != nil {
			return nil, err
		}
		return existing, s.recordHit(existing, status)
	}

	metrics.IncEndpointRegistered()
	logger.WithFields(map[string]interface{}{
		"path":   created.Path,
		"method": created.Method,
	}).Info("auto-registered endpoint")

	return &created, nil
}

// recordHit bumps hitsByStatusCode inside a transaction. SQLite allows a
// single writer at a time, so a concurrent read-modify-write surfaces as a
// busy error instead of a lost increment.
func (s *EndpointService) recordHit(ep *models.Endpoint, status int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var fresh models.Endpoint
		if err := tx.First(&fresh, ep.ID).Error; err != nil {
			return err
		}
		fresh.RecordHit(status)
		if err := tx.Model(&fresh).Select("hits_by_status_code", "updated_at").
			Updates(map[string]interface{}{
				"hits_by_status_code": fresh.HitsByStatusCode,
				"updated_at":          time.Now(),
			}).Error; err != nil {
			return err
		}
		ep.HitsByStatusCode = fresh.HitsByStatusCode
		return nil
	})
}

// List returns all registered endpoints, most recently updated first.
func (s *EndpointService) List() ([]models.Endpoint, error) {
	var eps []models.Endpoint
	if err := s.db.Order("updated_at desc").Find(&eps).Error; err != nil {
		return nil, err
	}
	return eps, nil
}

// GetByUUID retrieves an endpoint by UUID.
func (s *EndpointService) GetByUUID(id string) (*models.Endpoint, error) {
	var ep models.Endpoint
	if err := s.db.Where("uuid = ?", id).First(&ep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEndpointNotFound
		}
		return nil, err
	}
	return &ep, nil
}

// Create registers an endpoint explicitly via the management API.
func (s *EndpointService) Create(ep *models.Endpoint) error {
	ep.UUID = uuid.NewString()
	ep.Method = strings.ToUpper(ep.Method)
	ep.Whitelist = normalizeIPList(ep.Whitelist)
	ep.Blacklist = normalizeIPList(ep.Blacklist)

	err := s.db.Create(ep).Error
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrEndpointExists
	}
	return err
}

// UpdatePolicy updates the management-owned policy fields of an endpoint.
// Hit statistics and the learned shape are left alone.
func (s *EndpointService) UpdatePolicy(id string, updates *models.Endpoint) (*models.Endpoint, error) {
	ep, err := s.GetByUUID(id)
	if err != nil {
		return nil, err
	}

	ep.Description = updates.Description
	ep.ResourceHeavy = updates.ResourceHeavy
	ep.RateLimitPerMinute = updates.RateLimitPerMinute
	ep.AllowSecuredIPOnly = updates.AllowSecuredIPOnly
	ep.Whitelist = normalizeIPList(updates.Whitelist)
	ep.Blacklist = normalizeIPList(updates.Blacklist)
	ep.SecurityGroupRefs = updates.SecurityGroupRefs
	ep.IsNew = false

	if err := s.db.Save(ep).Error; err != nil {
		return nil, err
	}
	return ep, nil
}

// Delete removes an endpoint from the registry.
func (s *EndpointService) Delete(id string) error {
	res := s.db.Where("uuid = ?", id).Delete(&models.Endpoint{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// normalizeIPList trims and normalizes every address so stored lists never
// contain IPv4-mapped-IPv6 forms.
func normalizeIPList(list models.StringList) models.StringList {
	if len(list) == 0 {
		return list
	}
	out := make(models.StringList, 0, len(list))
	for _, ip := range list {
		if n := policy.NormalizeIP(strings.TrimSpace(ip)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	paramSegment   = regexp.MustCompile(`^\{[^/]+\}$`)
)

// TemplatePath rewrites identifier-looking path segments to {id} so that
// /orders/42 and /orders/99 register as the single endpoint /orders/{id}.
func TemplatePath(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if numericSegment.MatchString(seg) || uuidSegment.MatchString(seg) {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}

// templateRegexp compiles a stored path into a matcher where each {param}
// segment matches exactly one path segment.
func templateRegexp(storedPath string) *regexp.Regexp {
	segs := strings.Split(storedPath, "/")
	quoted := make([]string, len(segs))
	for i, seg := range segs {
		if paramSegment.MatchString(seg) {
			quoted[i] = `[^/]+`
		} else {
			quoted[i] = regexp.QuoteMeta(seg)
		}
	}
	return regexp.MustCompile(`^` + strings.Join(quoted, `/`) + `$`)
}
