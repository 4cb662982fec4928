package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength     = 50
	minPasswordLength = 6
	maxKeyNameLength  = 100
)

// normalizeEmail lower-cases and syntactically checks a bare address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", Validation("please provide an email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", Validation("please provide a valid email")
	}
	return email, nil
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", Validation("please provide a name")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", Validation("name cannot exceed 50 characters")
	}
	return name, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Validation("password must be at least 6 characters")
	}
	return nil
}

// requireText trims s and checks it is present and at most max runes long.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", Validation(field + " is required")
	}
	if utf8.RuneCountInString(s) > max {
		return "", Validation(fmt.Sprintf("%s cannot exceed %d characters", field, max))
	}
	return s, nil
}
