package password

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ErrPolicyViolation is returned when a candidate password fails the configured policy.
var ErrPolicyViolation = errors.New("password policy violation")

// PolicyConfig holds the password strength settings shared by account creation and
// password change.
type PolicyConfig struct {
	MinLength          int
	MinNonAlphanumeric int
	// Pattern must match the whole password when non-empty.
	Pattern string
}

// Policy validates candidate passwords against a PolicyConfig.
type Policy struct {
	config  PolicyConfig
	pattern *regexp.Regexp
}

// NewPolicy compiles cfg into a Policy.
//
// NewPolicy returns an error when a length is negative or Pattern does not compile.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if cfg.MinLength < 0 {
		return nil, errors.New("password min length must be >= 0")
	}
	if cfg.MinNonAlphanumeric < 0 {
		return nil, errors.New("password min non-alphanumeric characters must be >= 0")
	}

	p := &Policy{config: cfg}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(`^(?:` + cfg.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("password strength expression: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate returns nil when candidate satisfies every rule, otherwise an error
// wrapping ErrPolicyViolation that names the first failed rule.
func (p *Policy) Validate(candidate string) error {
	if p == nil {
		return nil
	}

	rules := make([]validation.Rule, 0, 4)
	if p.config.MinLength > 0 {
		rules = append(rules,
			validation.Required.Error(fmt.Sprintf("must be at least %d characters", p.config.MinLength)),
			validation.RuneLength(p.config.MinLength, 0).Error(fmt.Sprintf("must be at least %d characters", p.config.MinLength)),
		)
	}
	if p.config.MinNonAlphanumeric > 0 {
		rules = append(rules, validation.By(p.checkNonAlphanumeric))
	}
	if p.pattern != nil {
		rules = append(rules,
			validation.Required.Error("must match the password strength expression"),
			validation.Match(p.pattern).Error("must match the password strength expression"),
		)
	}

	if err := validation.Validate(candidate, rules...); err != nil {
		return fmt.Errorf("%w: %v", ErrPolicyViolation, err)
	}
	return nil
}

func (p *Policy) checkNonAlphanumeric(value interface{}) error {
	s, _ := value.(string)
	if CountNonAlphanumeric(s) < p.config.MinNonAlphanumeric {
		return fmt.Errorf("must contain at least %d non-alphanumeric characters", p.config.MinNonAlphanumeric)
	}
	return nil
}

// CountNonAlphanumeric returns the number of runes in s that are neither letters nor digits.
func CountNonAlphanumeric(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
