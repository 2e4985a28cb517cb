package models

import (
	"time"
)

// CallRecord is one logged request outcome. Created exactly once per
// completed request after the response has been sent, immutable afterwards.
type CallRecord struct {
	ID uint `json:"id" gorm:"primaryKey"`

	// EndpointID is nil when the request never resolved to a registered
	// endpoint (unseen path that errored).
	EndpointID *uint `json:"endpoint_id,omitempty" gorm:"index"`

	Timestamp      time.Time `json:"timestamp" gorm:"index"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	IsError        bool      `json:"is_error"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}
