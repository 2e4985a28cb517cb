package models

import (
	"time"
)

// SecurityGroup is a named bundle of rules applied to a set of endpoints.
// It holds non-owning references to both sides; endpoints and rules are
// looked up by ID, never embedded.
type SecurityGroup struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UUID        string `json:"uuid" gorm:"uniqueIndex"`
	Name        string `json:"name" gorm:"uniqueIndex"`
	Description string `json:"description"`

	Rules     []Rule     `json:"rules,omitempty" gorm:"many2many:security_group_rules;"`
	Endpoints []Endpoint `json:"endpoints,omitempty" gorm:"many2many:security_group_endpoints;"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
