package validator

import (
	"net/mail"
	"slices"
	"strings"
	"unicode/utf8"
)

func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{
			Field:             field,
			Message:           "is required",
			TranslationKey:    "validation.required",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{
			Field:             field,
			Message:           "is too long",
			TranslationKey:    "validation.max_length",
			TranslationValues: map[string]any{"field": field, "max": max},
		},
	}
}

// ValidEmail accepts a bare RFC 5322 address whose domain has a dot.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool { return isEmail(strings.TrimSpace(value)) },
		Error: ValidationError{
			Field:             field,
			Message:           "must be a valid email address",
			TranslationKey:    "validation.email",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

// OneOf passes empty values; pair it with Required when the field is mandatory.
func OneOf(field, value string, options []string) Rule {
	return Rule{
		Check: func() bool { return value == "" || slices.Contains(options, value) },
		Error: ValidationError{
			Field:             field,
			Message:           "must be one of: " + strings.Join(options, ", "),
			TranslationKey:    "validation.one_of",
			TranslationValues: map[string]any{"field": field, "options": strings.Join(options, ", ")},
		},
	}
}

func isEmail(value string) bool {
	if value == "" {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return false
	}
	local, domain, ok := strings.Cut(value, "@")
	if !ok || local == "" || !strings.Contains(domain, ".") {
		return false
	}
	for part := range strings.SplitSeq(domain, ".") {
		if part == "" {
			return false
		}
	}
	return true
}
