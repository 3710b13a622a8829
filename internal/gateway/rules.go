package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gateway-service/internal/models"
)

// ValidationErrors collects field-keyed messages. Callback integrity
// failures use the keys "signature", "verification" and "account".
type ValidationErrors map[string][]string

// Keys for callback integrity failures
const (
	ErrKeySignature    = "signature"
	ErrKeyVerification = "verification"
	ErrKeyAccount      = "account"
	ErrKeyPayload      = "payload"
)

// ErrKeyCurrency keys a request that needs a currency and has none
const ErrKeyCurrency = "currency"

// Add records a message for field
func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

// Has reports whether field has any message
func (v ValidationErrors) Has(field string) bool {
	return len(v[field]) > 0
}

// Error joins all messages, sorted by field
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(v[f], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// integrityError returns a single-entry ValidationErrors
func integrityError(key, message string) ValidationErrors {
	errs := ValidationErrors{}
	errs.Add(key, message)
	return errs
}

var validate = validator.New()

// Rule checks one settings field
type Rule struct {
	Field   string
	Message string
	check   func(value string) bool
}

func tagRule(field, tag, message string) Rule {
	return Rule{
		Field:   field,
		Message: message,
		check: func(value string) bool {
			return validate.Var(value, tag) == nil
		},
	}
}

// Required fails on an empty or blank value
func Required(field, message string) Rule {
	r := tagRule(field, "required", message)
	check := r.check
	r.check = func(value string) bool { return check(strings.TrimSpace(value)) }
	return r
}

// MaxLength fails when the value exceeds n characters
func MaxLength(field string, n int, message string) Rule {
	return tagRule(field, fmt.Sprintf("max=%d", n), message)
}

// OneOf fails unless the value is one of the allowed values. An empty value
// passes; combine with Required when the field is mandatory.
func OneOf(field string, allowed []string, message string) Rule {
	return tagRule(field, "omitempty,oneof="+strings.Join(allowed, " "), message)
}

// Email fails on a malformed address. An empty value passes.
func Email(field, message string) Rule {
	return tagRule(field, "omitempty,email", message)
}

// Numeric fails unless the value is all digits. An empty value passes.
func Numeric(field, message string) Rule {
	return tagRule(field, "omitempty,numeric", message)
}

// Matches fails unless the value matches pattern
func Matches(field string, pattern *regexp.Regexp, message string) Rule {
	return Rule{Field: field, Message: message, check: pattern.MatchString}
}

// RuleSet is the declarative settings rules of one adapter
type RuleSet []Rule

// Validate runs every rule and collects failures by field
func (rs RuleSet) Validate(settings models.Settings) ValidationErrors {
	errs := ValidationErrors{}
	for _, rule := range rs {
		if !rule.check(settings.Get(rule.Field)) {
			errs.Add(rule.Field, rule.Message)
		}
	}
	return errs
}

// defaultFlags sets unset boolean flags to "false" and leaves everything else as given
func defaultFlags(settings models.Settings, flags ...string) models.Settings {
	out := settings.Clone()
	for _, flag := range flags {
		if v, ok := out[flag]; !ok || v == "" {
			out[flag] = "false"
		}
	}
	return out
}
