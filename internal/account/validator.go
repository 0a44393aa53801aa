// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
)

// Email length bounds (RFC 5321 path limit).
const (
	minEmailLength = 3
	maxEmailLength = 254
)

// emailPattern matches a local part, "@", and a domain made of at least two
// non-empty labels separated by dots. Whitespace never matches.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)+$`)

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Registration and every lookup go through it so they can never diverge.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks candidate against the email format rules.
// It does not trim; callers normalize first.
func ValidateEmail(candidate string) error {
	err := validation.Validate(candidate,
		validation.Required,
		validation.Length(minEmailLength, maxEmailLength),
		validation.Match(emailPattern),
	)
	if err != nil {
		return oops.Code(CodeInvalidEmailFormat).
			With("email", candidate).
			Wrapf(ErrInvalidEmailFormat, "email %s", err.Error())
	}
	return nil
}

// PasswordPolicy holds the password complexity rules.
type PasswordPolicy struct {
	MinLength      int  `koanf:"min_length" yaml:"min_length" json:"min_length"`
	RequireDigit   bool `koanf:"require_digit" yaml:"require_digit" json:"require_digit"`
	RequireUpper   bool `koanf:"require_upper" yaml:"require_upper" json:"require_upper"`
	RequireSpecial bool `koanf:"require_special" yaml:"require_special" json:"require_special"`
}

// DefaultPasswordPolicy returns the default policy: at least 8 characters,
// one digit and one special character. Upper-case letters are not required.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireDigit:   true,
		RequireUpper:   false,
		RequireSpecial: true,
	}
}

type passwordRule struct {
	name string
	rule validation.Rule
}

func (p PasswordPolicy) rules() []passwordRule {
	rules := []passwordRule{
		{name: "required", rule: validation.Required},
		{name: "min_length", rule: validation.By(minRunes(p.MinLength))},
	}
	if p.RequireDigit {
		rules = append(rules, passwordRule{
			name: "require_digit",
			rule: validation.By(containsClass(unicode.IsDigit, "must contain at least one digit")),
		})
	}
	if p.RequireUpper {
		rules = append(rules, passwordRule{
			name: "require_upper",
			rule: validation.By(containsClass(unicode.IsUpper, "must contain at least one upper-case letter")),
		})
	}
	if p.RequireSpecial {
		rules = append(rules, passwordRule{
			name: "require_special",
			rule: validation.By(containsClass(isSpecial, "must contain at least one special character")),
		})
	}
	return rules
}

// Validate checks candidate against the policy. Passwords are not trimmed.
// The returned error names the first failing rule in its "rule" context.
func (p PasswordPolicy) Validate(candidate string) error {
	for _, r := range p.rules() {
		if err := validation.Validate(candidate, r.rule); err != nil {
			return oops.Code(CodeWeakPassword).
				With("rule", r.name).
				Wrapf(ErrWeakPassword, "password %s", err.Error())
		}
	}
	return nil
}

func minRunes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if utf8.RuneCountInString(s) < n {
			return fmt.Errorf("must be at least %d characters long", n)
		}
		return nil
	}
}

func containsClass(match func(rune) bool, msg string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		for _, r := range s {
			if match(r) {
				return nil
			}
		}
		return errors.New(msg)
	}
}

// isSpecial reports whether r is punctuation or a symbol, e.g. !@#$%^&*.
func isSpecial(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
