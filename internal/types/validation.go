package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyValidationConfig controls which logical cache keys are accepted.
type KeyValidationConfig struct {
	ReservedPatterns  []string
	MaxKeyLength      int
	AllowEmpty        bool
	AllowControlChars bool
	AllowWhitespace   bool
}

// DefaultKeyValidationConfig accepts normalized search queries (which keep
// single spaces) and Discord snowflake pairs.
func DefaultKeyValidationConfig() KeyValidationConfig {
	return KeyValidationConfig{
		MaxKeyLength:    512,
		AllowWhitespace: true,
	}
}

type keyRule func(key string) error

// KeyValidator checks logical keys before they are prefixed and sent to the
// store. Rules are chosen once from the config.
type KeyValidator struct {
	allowEmpty bool
	rules      []keyRule
}

func NewKeyValidator(cfg KeyValidationConfig) *KeyValidator {
	v := &KeyValidator{allowEmpty: cfg.AllowEmpty}
	if cfg.MaxKeyLength > 0 {
		v.rules = append(v.rules, maxLength(cfg.MaxKeyLength))
	}
	v.rules = append(v.rules, validUTF8)
	if !cfg.AllowControlChars || !cfg.AllowWhitespace {
		v.rules = append(v.rules, rejectRunes(!cfg.AllowControlChars, !cfg.AllowWhitespace))
	}
	if len(cfg.ReservedPatterns) > 0 {
		v.rules = append(v.rules, rejectPatterns(cfg.ReservedPatterns))
	}
	return v
}

// Validate returns an ErrInvalidKey-wrapped error for the first rule key breaks.
func (v *KeyValidator) Validate(key string) error {
	if key == "" {
		if v.allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, rule := range v.rules {
		if err := rule(key); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
	}
	return nil
}

func maxLength(limit int) keyRule {
	return func(key string) error {
		if len(key) > limit {
			return fmt.Errorf("%d bytes, limit %d", len(key), limit)
		}
		return nil
	}
}

func validUTF8(key string) error {
	if !utf8.ValidString(key) {
		return errors.New("not valid UTF-8")
	}
	return nil
}

func rejectRunes(control, space bool) keyRule {
	return func(key string) error {
		i := strings.IndexFunc(key, func(r rune) bool {
			return (control && unicode.IsControl(r)) || (space && unicode.IsSpace(r))
		})
		if i >= 0 {
			r, _ := utf8.DecodeRuneInString(key[i:])
			return fmt.Errorf("disallowed character %q at byte %d", r, i)
		}
		return nil
	}
}

func rejectPatterns(patterns []string) keyRule {
	return func(key string) error {
		for _, p := range patterns {
			if strings.Contains(key, p) {
				return fmt.Errorf("reserved pattern %q", p)
			}
		}
		return nil
	}
}
