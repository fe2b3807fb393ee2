package goMembership

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds every Engine setting. Build it with defaultConfig semantics via
// New, or from a flat provider map with ConfigFromMap.
type Config struct {
	Membership MembershipConfig
	Storage    StorageConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
MEMBERSHIP CONFIG
====================================
*/

// MembershipConfig holds the provider rules applied by every membership operation.
type MembershipConfig struct {
	ApplicationName string

	MaxInvalidPasswordAttempts int
	// PasswordAttemptWindow is configured in whole minutes. Zero disables lockout.
	PasswordAttemptWindow time.Duration

	MinRequiredNonAlphanumericCharacters int
	MinRequiredPasswordLength            int
	PasswordStrengthRegularExpression    string

	EnablePasswordReset       bool
	RequiresQuestionAndAnswer bool

	// RequiresUniqueEmail must stay true and EnablePasswordRetrieval must stay
	// false. Both exist so misconfiguration is reported instead of ignored.
	RequiresUniqueEmail     bool
	EnablePasswordRetrieval bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig selects the document store opened by Build when no store is injected.
type StorageConfig struct {
	InMemory             bool
	Embedded             bool
	DataDirectory        string
	ConnectionURL        string
	ConnectionStringName string
	KeyPrefix            string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Membership: MembershipConfig{
			ApplicationName:                      "/",
			MaxInvalidPasswordAttempts:           5,
			PasswordAttemptWindow:                10 * time.Minute,
			MinRequiredNonAlphanumericCharacters: 1,
			MinRequiredPasswordLength:            7,
			PasswordStrengthRegularExpression:    "",
			EnablePasswordReset:                  true,
			RequiresQuestionAndAnswer:            false,
			RequiresUniqueEmail:                  true,
			EnablePasswordRetrieval:              false,
		},
		Storage: StorageConfig{
			KeyPrefix: "mbr",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the settings used when a key is absent from the provider map.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
//
// Validate returns an error for out-of-range numbers, an uncompilable strength
// expression, RequiresUniqueEmail set to false, or EnablePasswordRetrieval set to true.
func (c *Config) Validate() error {
	m := c.Membership

	if err := m.validateFields(); err != nil {
		return fmt.Errorf("membership config: %w", err)
	}

	if !m.RequiresUniqueEmail {
		return errors.New("Membership RequiresUniqueEmail must be true")
	}
	if m.EnablePasswordRetrieval {
		return errors.New("Membership EnablePasswordRetrieval is not supported")
	}
	if m.PasswordAttemptWindow%time.Minute != 0 {
		return errors.New("Membership PasswordAttemptWindow must be a whole number of minutes")
	}
	if m.MinRequiredNonAlphanumericCharacters > m.MinRequiredPasswordLength {
		return errors.New("Membership MinRequiredNonAlphanumericCharacters cannot exceed MinRequiredPasswordLength")
	}
	if m.PasswordStrengthRegularExpression != "" {
		if _, err := regexp.Compile(m.PasswordStrengthRegularExpression); err != nil {
			return fmt.Errorf("Membership PasswordStrengthRegularExpression: %w", err)
		}
	}

	if c.Storage.Embedded && c.Storage.DataDirectory == "" {
		return errors.New("Storage DataDirectory is required when Embedded is true")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func (m MembershipConfig) validateFields() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ApplicationName, validation.Required, validation.Length(1, 256)),
		validation.Field(&m.MaxInvalidPasswordAttempts, validation.Min(0)),
		validation.Field(&m.PasswordAttemptWindow, validation.Min(time.Duration(0))),
		validation.Field(&m.MinRequiredNonAlphanumericCharacters, validation.Min(0), validation.Max(128)),
		validation.Field(&m.MinRequiredPasswordLength, validation.Min(0), validation.Max(128)),
	)
}
