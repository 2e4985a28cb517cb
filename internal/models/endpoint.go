package models

import (
	"strconv"
	"time"
)

// Endpoint is a registered (path, method) route with its policy metadata and
// hit statistics. Paths may contain template segments like /orders/{id};
// resolution treats those as single-segment wildcards.
type Endpoint struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UUID        string `json:"uuid" gorm:"uniqueIndex"`
	Path        string `json:"path" gorm:"uniqueIndex:idx_endpoints_path_method"`
	Method      string `json:"method" gorm:"uniqueIndex:idx_endpoints_path_method"`
	Description string `json:"description"`

	// Declared request shape, learned on first observation or set via the
	// management API. Used by the input-validation rule.
	QueryParams  StringList `json:"query_parameters" gorm:"type:text"`
	PathParams   StringList `json:"path_parameters" gorm:"type:text"`
	HeaderParams StringList `json:"request_headers" gorm:"type:text"`
	BodyParams   StringList `json:"request_body" gorm:"type:text"`

	ResponseSample string `json:"response_structure,omitempty" gorm:"type:text"`

	// Policy fields, owned by the management API; the registry never
	// overwrites them on observation.
	ResourceHeavy      bool       `json:"resource_heavy"`
	RateLimitPerMinute *int       `json:"rate_limit_pm,omitempty"`
	AllowSecuredIPOnly bool       `json:"allow_secured_ip_only"`
	Whitelist          StringList `json:"whitelist" gorm:"type:text"`
	Blacklist          StringList `json:"blacklist" gorm:"type:text"`

	// SecurityGroupRefs lists group names applying to this endpoint. Kept for
	// compatibility with name-based linkage; the canonical direction is the
	// group's endpoint references.
	SecurityGroupRefs StringList `json:"security_groups" gorm:"type:text"`

	HitsByStatusCode StatusHits `json:"hitsByStatusCode" gorm:"type:text"`

	IsNew   bool   `json:"is_new" gorm:"default:true"`
	Version string `json:"version" gorm:"default:'v1.0'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"last_updated"`
}

// RecordHit increments the hit counter for the given status code.
func (e *Endpoint) RecordHit(status int) {
	if e.HitsByStatusCode == nil {
		e.HitsByStatusCode = StatusHits{}
	}
	e.HitsByStatusCode[strconv.Itoa(status)]++
}
