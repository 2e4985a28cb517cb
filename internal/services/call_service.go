package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/models"
)

// StatusCodeCount is one row of the status-code report.
type StatusCodeCount struct {
	StatusCode int   `json:"status_code"`
	Count      int64 `json:"count"`
}

// EndpointStats aggregates call history for one endpoint.
type EndpointStats struct {
	EndpointID     uint    `json:"endpoint_id"`
	Calls          int64   `json:"calls"`
	Errors         int64   `json:"errors"`
	AvgResponseMs  float64 `json:"avg_response_ms"`
	ErrorRate      float64 `json:"error_rate"`
	WindowStartUTC string  `json:"window_start_utc"`
}

// CallService records completed requests and answers analytics queries over
// the call history. A cron entry prunes records past the retention window.
type CallService struct {
	db        *gorm.DB
	retention time.Duration

	// Cron runs the retention job; exported so callers can stop it on
	// shutdown.
	Cron *cron.Cron
}

func NewCallService(db *gorm.DB, retention time.Duration) *CallService {
	s := &CallService{db: db, retention: retention, Cron: cron.New()}
	if _, err := s.Cron.AddFunc("17 3 * * *", s.prune); err != nil {
		logger.Log().WithError(err).Warn("failed to schedule call record retention")
	}
	s.Cron.Start()
	return s
}

// Record appends one call record. endpointID may be nil when the request
// never resolved to a registered endpoint. Recording failures are logged and
// swallowed; the response has already been sent.
func (s *CallService) Record(endpointID *uint, responseTime time.Duration, statusCode int, errMsg string) {
	rec := models.CallRecord{
		EndpointID:     endpointID,
		Timestamp:      time.Now(),
		ResponseTimeMs: responseTime.Milliseconds(),
		StatusCode:     statusCode,
		IsError:        statusCode >= 400,
		ErrorMessage:   errMsg,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Log().WithError(err).Warn("failed to record call")
	}
}

// CountSince counts calls for an endpoint within the trailing window. This
// backs the log-counting rate-limit strategy.
func (s *CallService) CountSince(endpointID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.CallRecord{}).
		Where("endpoint_id = ? AND timestamp >= ?", endpointID, since).
		Count(&count).Error
	return count, err
}

// StatusCodeReport groups calls from the trailing 24 hours by status code.
func (s *CallService) StatusCodeReport() ([]StatusCodeCount, error) {
	since := time.Now().Add(-24 * time.Hour)

	var rows []StatusCodeCount
	err := s.db.Model(&models.CallRecord{}).
		Select("status_code, count(*) as count").
		Where("timestamp >= ?", since).
		Group("status_code").
		Order("status_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Stats aggregates call volume, latency, and error rate for an endpoint over
// the trailing 24 hours.
func (s *CallService) Stats(endpointID uint) (*EndpointStats, error) {
	since := time.Now().Add(-24 * time.Hour)

	var row struct {
		Calls  int64
		Errors int64
		AvgMs  float64
	}
	err := s.db.Model(&models.CallRecord{}).
		Select("count(*) as calls, sum(case when is_error then 1 else 0 end) as errors, coalesce(avg(response_time_ms), 0) as avg_ms").
		Where("endpoint_id = ? AND timestamp >= ?", endpointID, since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &EndpointStats{
		EndpointID:     endpointID,
		Calls:          row.Calls,
		Errors:         row.Errors,
		AvgResponseMs:  row.AvgMs,
		WindowStartUTC: since.UTC().Format(time.RFC3339),
	}
	if row.Calls > 0 {
		stats.ErrorRate = float64(row.Errors) / float64(row.Calls)
	}
	return stats, nil
}

// prune deletes call records older than the retention window.
func (s *CallService) prune() {
	cutoff := time.Now().Add(-s.retention)
	res := s.db.Where("timestamp < ?", cutoff).Delete(&models.CallRecord{})
	if res.Error != nil {
		logger.Log().WithError(res.Error).Warn("call record retention failed")
		return
	}
	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{"pruned": res.RowsAffected}).Info("pruned call records")
	}
}
