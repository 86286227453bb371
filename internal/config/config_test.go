package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg := load(map[string]string{})

	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("data", "configs"), cfg.Storage.SubscriptionsDir())
	assert.Equal(t, filepath.Join("data", "cache", "tender_data.json"), cfg.Storage.CacheFile())
	assert.Equal(t, 10, cfg.Scheduler.CleanupEveryMinutes)
	assert.Equal(t, "file", cfg.Ledger.Driver)
	assert.Equal(t, 3, cfg.Harvest.MaxPages)
	require.Len(t, cfg.Harvest.Sources, 1)
	assert.Equal(t, "ppip", cfg.Harvest.Sources[0].Scanner)
	assert.NotNil(t, cfg.Scheduler.Location())
}

func TestLoadMergesFileAndEnvironment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tenderwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  dataDir: /srv/tenders
scheduler:
  timezone: UTC
  cleanupEveryMinutes: 30
notifications:
  email:
    from: tenders@example.com
    timeout: 10s
harvest:
  maxPages: 5
  staleAfter: 45m
ledger:
  driver: sqlite
logging:
  format: json
`), 0o644))

	cfg := load(map[string]string{
		"TENDERWATCH_CONFIG": path,
		"RESEND_API_KEY":     "re_env",
		"PPIP_MAX_PAGES":     "2",
		"TELEGRAM_CHAT_ID":   "42",
	})

	assert.Equal(t, "/srv/tenders", cfg.Storage.DataDir)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
	assert.Equal(t, 30, cfg.Scheduler.CleanupEveryMinutes)
	assert.Equal(t, "tenders@example.com", cfg.Notifications.Email.From)
	assert.Equal(t, 10*time.Second, cfg.Notifications.Email.Timeout)
	assert.Equal(t, "re_env", cfg.Notifications.Email.APIKey)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
	assert.Equal(t, 2, cfg.Harvest.MaxPages)
	assert.Equal(t, 45*time.Minute, cfg.Harvest.StaleAfter)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, filepath.Join("/srv/tenders", "ledger.db"), cfg.Ledger.DSN)
	assert.Equal(t, "[TenderWatch]", cfg.Notifications.Email.SubjectPrefix)
}

func TestLoadUnknownTimezoneFallsBack(t *testing.T) {
	t.Parallel()

	cfg := load(map[string]string{"TENDERWATCH_TIMEZONE": "Mars/Olympus"})
	assert.Equal(t, defaultTimezone, cfg.Scheduler.Timezone)
}

func TestLoadUnreadableFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg := load(map[string]string{"TENDERWATCH_CONFIG": filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Equal(t, defaultConfig().Storage, cfg.Storage)
}
