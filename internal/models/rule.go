package models

import (
	"time"
)

// Rule names one built-in security behavior. Implementation selects the
// behavior by key; unknown keys are skipped at evaluation time, never fatal.
type Rule struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UUID        string `json:"uuid" gorm:"uniqueIndex"`
	Name        string `json:"name" gorm:"index"`
	Description string `json:"description"`

	// Implementation is the stable key selecting a built-in behavior:
	// ip-filtering, identity-verification, input-validation,
	// content-inspection, xss-sanitization, rate-limiting, caching,
	// call-logging.
	Implementation string `json:"implementation" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
