package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderWatch/internal/domain"
)

func testDefaults() domain.DispatchOptions {
	return domain.DispatchOptions{
		NewRecipientMode:        domain.NewOnly,
		HarvestFrequencyMinutes: 10,
		MaxSourcePages:          3,
		EmailFrom:               "noreply@x",
		SubjectPrefix:           "[TW]",
	}
}

func TestOptionsMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	o := NewOptionsFile(filepath.Join(t.TempDir(), "app_config.json"), testDefaults(), nil)
	assert.Equal(t, testDefaults(), o.Load())
}

func TestOptionsCorruptFileUsesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"new_recipient_mode": "all_active",`), 0o644))

	assert.Equal(t, testDefaults(), NewOptionsFile(path, testDefaults(), nil).Load())
}

func TestOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"new_recipient_mode": "all_active",
		"harvest_frequency": "15",
		"max_pages": 5,
		"show_expired_in_emails": true,
		"resend_api_key": "re_file",
		"email_from": "",
		"email_subject_prefix": "[Tenders]"
	}`), 0o644))

	opts := NewOptionsFile(path, testDefaults(), nil).Load()
	assert.Equal(t, domain.AllActive, opts.NewRecipientMode)
	assert.Equal(t, 15, opts.HarvestFrequencyMinutes)
	assert.Equal(t, 5, opts.MaxSourcePages)
	assert.True(t, opts.ShowExpiredInEmails)
	assert.Equal(t, "re_file", opts.ResendAPIKey)
	assert.Equal(t, "noreply@x", opts.EmailFrom)
	assert.Equal(t, "[Tenders]", opts.SubjectPrefix)
}

func TestOptionsUnknownModeFallsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"new_recipient_mode": "everything"}`), 0o644))

	assert.Equal(t, domain.NewOnly, NewOptionsFile(path, testDefaults(), nil).Load().NewRecipientMode)
}
