package crawler

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/yaffatrack/internal/config"
	"github.com/wnt/yaffatrack/internal/database"
	"github.com/wnt/yaffatrack/internal/models"
)

// TestTrackerStateMachine walks one address through crawling, completed and
// error against a real database. Only runs when explicitly enabled.
func TestTrackerStateMachine(t *testing.T) {
	if os.Getenv("RUN_DB_TESTS") != "true" {
		t.Skip("Skipping database-backed tracker test. Set RUN_DB_TESTS=true to enable.")
	}

	db, err := database.Connect(config.Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		DBSSLMode:  "disable",
	})
	require.NoError(t, err)

	tracker := NewTracker(db)
	address := fmt.Sprintf("TrackerTestAddr%d", time.Now().UnixNano())
	defer db.Unscoped().Where("wallet_address = ?", address).Delete(&models.CrawlStatus{})

	require.NoError(t, tracker.MarkCrawling(address))

	var status models.CrawlStatus
	require.NoError(t, db.Where("wallet_address = ?", address).First(&status).Error)
	assert.Equal(t, models.CrawlCrawling, status.Status)

	require.NoError(t, tracker.MarkCompleted(address, 3))

	require.NoError(t, db.Where("wallet_address = ?", address).First(&status).Error)
	assert.Equal(t, models.CrawlCompleted, status.Status)
	assert.Equal(t, 3, status.CrawlDepth)
	assert.Empty(t, status.ErrorMessage)
	require.NotNil(t, status.LastCrawled)

	require.NoError(t, tracker.MarkError(address, assert.AnError))

	require.NoError(t, db.Where("wallet_address = ?", address).First(&status).Error)
	assert.Equal(t, models.CrawlError, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)
}
