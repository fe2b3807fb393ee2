package goMembership

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized provider map keys. Lookups are case-insensitive.
const (
	KeyApplicationName                      = "applicationName"
	KeyMaxInvalidPasswordAttempts           = "maxInvalidPasswordAttempts"
	KeyPasswordAttemptWindow                = "passwordAttemptWindow"
	KeyMinRequiredNonAlphanumericCharacters = "minRequiredNonAlphanumericCharacters"
	KeyMinRequiredPasswordLength            = "minRequiredPasswordLength"
	KeyPasswordStrengthRegularExpression    = "passwordStrengthRegularExpression"
	KeyEnablePasswordReset                  = "enablePasswordReset"
	KeyEnablePasswordRetrieval              = "enablePasswordRetrieval"
	KeyRequiresQuestionAndAnswer            = "requiresQuestionAndAnswer"
	KeyRequiresUniqueEmail                  = "requiresUniqueEmail"
	KeyInMemory                             = "inMemory"
	KeyEmbedded                             = "embedded"
	KeyDataDirectory                        = "dataDirectory"
	KeyConnectionURL                        = "connectionUrl"
	KeyConnectionStringName                 = "connectionStringName"
	KeyKeyPrefix                            = "keyPrefix"
)

// ConfigFromMap builds a Config from a flat provider map. Absent keys keep
// their defaults and unknown keys are ignored.
//
// ConfigFromMap returns an error when a value does not parse or when the
// resulting Config fails Validate.
func ConfigFromMap(values map[string]string) (Config, error) {
	cfg := defaultConfig()
	r := newMapReader(values)

	m := &cfg.Membership
	r.str(KeyApplicationName, &m.ApplicationName)
	r.integer(KeyMaxInvalidPasswordAttempts, &m.MaxInvalidPasswordAttempts)
	r.minutes(KeyPasswordAttemptWindow, &m.PasswordAttemptWindow)
	r.integer(KeyMinRequiredNonAlphanumericCharacters, &m.MinRequiredNonAlphanumericCharacters)
	r.integer(KeyMinRequiredPasswordLength, &m.MinRequiredPasswordLength)
	r.str(KeyPasswordStrengthRegularExpression, &m.PasswordStrengthRegularExpression)
	r.boolean(KeyEnablePasswordReset, &m.EnablePasswordReset)
	r.boolean(KeyEnablePasswordRetrieval, &m.EnablePasswordRetrieval)
	r.boolean(KeyRequiresQuestionAndAnswer, &m.RequiresQuestionAndAnswer)
	r.boolean(KeyRequiresUniqueEmail, &m.RequiresUniqueEmail)

	s := &cfg.Storage
	r.boolean(KeyInMemory, &s.InMemory)
	r.boolean(KeyEmbedded, &s.Embedded)
	r.str(KeyDataDirectory, &s.DataDirectory)
	r.str(KeyConnectionURL, &s.ConnectionURL)
	r.str(KeyConnectionStringName, &s.ConnectionStringName)
	r.str(KeyKeyPrefix, &s.KeyPrefix)

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type mapReader struct {
	values map[string]string
	err    error
}

func newMapReader(values map[string]string) *mapReader {
	lowered := make(map[string]string, len(values))
	for k, v := range values {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &mapReader{values: lowered}
}

func (r *mapReader) lookup(key string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.values[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	// Empty values fall back to the default, matching an absent key.
	return v, v != ""
}

func (r *mapReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *mapReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = fmt.Errorf("config %s: %w", key, err)
		return
	}
	*dst = n
}

func (r *mapReader) minutes(key string, dst *time.Duration) {
	var n int
	r.integer(key, &n)
	if _, ok := r.lookup(key); !ok {
		return
	}
	*dst = time.Duration(n) * time.Minute
}

func (r *mapReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("config %s: %w", key, err)
		return
	}
	*dst = b
}
