package entity

import (
	"fmt"
	"net/mail"
	"regexp"
)

// maxEmailLength follows the RFC 5321 path limit.
const maxEmailLength = 254

// e164Pattern matches an E.164 number with or without the leading "+".
var e164Pattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

// ValidateEmail checks that address is a single bare mailbox address.
// Display names ("Jane <jane@example.com>") are rejected because the email
// API expects the raw address.
func ValidateEmail(address string) error {
	if address == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(address) > maxEmailLength {
		return &ValidationError{
			Field:   "email",
			Message: fmt.Sprintf("email must not exceed %d characters", maxEmailLength),
		}
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return &ValidationError{Field: "email", Message: "email must be a bare address"}
	}
	return nil
}

// ValidatePhone checks that phone is an E.164 number as required by the
// messaging app API.
func ValidatePhone(phone string) error {
	if phone == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	if !e164Pattern.MatchString(phone) {
		return &ValidationError{Field: "phone", Message: "phone must be in E.164 format"}
	}
	return nil
}
