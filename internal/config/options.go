package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// OptionsFile reads the operator-editable app_config.json. Every Load
// re-reads the file; a missing or malformed file yields the defaults.
type OptionsFile struct {
	path     string
	defaults domain.DispatchOptions
	logger   *slog.Logger
}

var _ ports.OptionsLoader = (*OptionsFile)(nil)

// NewOptionsFile reads path on top of defaults.
func NewOptionsFile(path string, defaults domain.DispatchOptions, logger *slog.Logger) *OptionsFile {
	if logger == nil {
		logger = slog.Default()
	}
	return &OptionsFile{path: path, defaults: defaults, logger: logger}
}

// DefaultOptions derives the fallback operator options from deployment config.
func (c Config) DefaultOptions() domain.DispatchOptions {
	return domain.DispatchOptions{
		NewRecipientMode:        domain.NewOnly,
		HarvestFrequencyMinutes: c.Harvest.FrequencyMinutes,
		MaxSourcePages:          c.Harvest.MaxPages,
		EmailFrom:               c.Notifications.Email.From,
		SubjectPrefix:           c.Notifications.Email.SubjectPrefix,
		ResendAPIKey:            c.Notifications.Email.APIKey,
	}
}

// Load returns the current options.
func (o *OptionsFile) Load() domain.DispatchOptions {
	opts := o.defaults

	raw, err := os.ReadFile(o.path)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Warn("cannot read options, using defaults", "path", o.path, "error", err)
		}
		return opts
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		o.logger.Warn("corrupt options file, using defaults", "path", o.path, "error", err)
		return opts
	}

	if v, ok := fields["new_recipient_mode"].(string); ok {
		opts.NewRecipientMode = domain.ParseNewRecipientMode(v)
	}
	if v, ok := intField(fields["harvest_frequency"]); ok && v > 0 {
		opts.HarvestFrequencyMinutes = v
	}
	if v, ok := intField(fields["max_pages"]); ok && v > 0 {
		opts.MaxSourcePages = v
	}
	if v, ok := fields["show_expired_in_emails"].(bool); ok {
		opts.ShowExpiredInEmails = v
	}
	if v, ok := fields["email_from"].(string); ok && v != "" {
		opts.EmailFrom = v
	}
	if v, ok := fields["email_subject_prefix"].(string); ok && v != "" {
		opts.SubjectPrefix = v
	}
	if v, ok := fields["resend_api_key"].(string); ok && v != "" {
		opts.ResendAPIKey = v
	}
	return opts
}

// intField accepts numbers and numeric strings, since form posts store both.
func intField(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}
