package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproxy/warden/internal/models"
)

func newTestCallService(t *testing.T) *CallService {
	t.Helper()
	svc := NewCallService(setupTestDB(t), 30*24*time.Hour)
	t.Cleanup(func() { svc.Cron.Stop() })
	return svc
}

func TestCallService_RecordAndCount(t *testing.T) {
	svc := newTestCallService(t)

	epID := uint(1)
	svc.Record(&epID, 12*time.Millisecond, 200, "")
	svc.Record(&epID, 30*time.Millisecond, 500, "Internal Server Error")
	svc.Record(nil, 5*time.Millisecond, 404, "Not Found")

	count, err := svc.CountSince(epID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = svc.CountSince(epID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count, "future windows are empty")
}

func TestCallService_StatusCodeReport(t *testing.T) {
	svc := newTestCallService(t)

	epID := uint(1)
	svc.Record(&epID, time.Millisecond, 200, "")
	svc.Record(&epID, time.Millisecond, 200, "")
	svc.Record(&epID, time.Millisecond, 429, "Rate limit exceeded")

	rows, err := svc.StatusCodeReport()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusCodeCount{StatusCode: 200, Count: 2}, rows[0])
	assert.Equal(t, StatusCodeCount{StatusCode: 429, Count: 1}, rows[1])
}

func TestCallService_Stats(t *testing.T) {
	svc := newTestCallService(t)

	epID := uint(7)
	svc.Record(&epID, 10*time.Millisecond, 200, "")
	svc.Record(&epID, 20*time.Millisecond, 200, "")
	svc.Record(&epID, 30*time.Millisecond, 500, "Internal Server Error")

	stats, err := svc.Stats(epID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Calls)
	assert.Equal(t, int64(1), stats.Errors)
	assert.InDelta(t, 20.0, stats.AvgResponseMs, 0.01)
	assert.InDelta(t, 1.0/3.0, stats.ErrorRate, 0.001)
}

func TestCallService_StatsEmptyEndpoint(t *testing.T) {
	svc := newTestCallService(t)

	stats, err := svc.Stats(99)
	require.NoError(t, err)
	assert.Zero(t, stats.Calls)
	assert.Zero(t, stats.ErrorRate)
}

func TestCallService_PruneDropsExpiredRecords(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCallService(db, time.Hour)
	t.Cleanup(func() { svc.Cron.Stop() })

	epID := uint(1)
	svc.Record(&epID, time.Millisecond, 200, "")

	old := models.CallRecord{EndpointID: &epID, Timestamp: time.Now().Add(-2 * time.Hour), StatusCode: 200}
	require.NoError(t, db.Create(&old).Error)

	svc.prune()

	var count int64
	require.NoError(t, db.Model(&models.CallRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "only records past retention are pruned")
}
