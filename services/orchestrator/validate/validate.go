// Package validate classifies the identifiers a citizen may type when asking
// for a grievance's status.
package validate

import (
	"regexp"
	"strings"
)

// Kind is the result of classifying user input.
type Kind int

const (
	Invalid Kind = iota
	GrievanceID
	MobileNumber
)

func (k Kind) String() string {
	switch k {
	case GrievanceID:
		return "grievance_id"
	case MobileNumber:
		return "mobile_number"
	default:
		return "invalid"
	}
}

var (
	grievanceIDPattern = regexp.MustCompile(`(?i)^G-[A-Za-z0-9]{8,}$`)
	mobilePattern      = regexp.MustCompile(`^[6-9]\d{9}$`)
	nonDigit           = regexp.MustCompile(`\D`)
)

// Identifier is a classified lookup key. Value is the form sent to the backend:
// the trimmed grievance ID, or the bare 10 digits of a mobile number.
type Identifier struct {
	Kind  Kind
	Value string
}

// Valid reports whether the identifier can be sent to the backend.
func (id Identifier) Valid() bool {
	return id.Kind != Invalid
}

// IsGrievanceID reports whether s is a G- prefixed case identifier with at
// least eight alphanumeric characters.
func IsGrievanceID(s string) bool {
	return grievanceIDPattern.MatchString(strings.TrimSpace(s))
}

// IsMobileNumber reports whether s holds an Indian mobile number once all
// non-digit characters are removed.
func IsMobileNumber(s string) bool {
	return mobilePattern.MatchString(digits(s))
}

// Classify returns the identifier kind of s. Grievance IDs win over mobile
// numbers. An Invalid result is a recoverable condition, not an error.
func Classify(s string) Identifier {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Identifier{Kind: Invalid}
	}
	if IsGrievanceID(trimmed) {
		return Identifier{Kind: GrievanceID, Value: trimmed}
	}
	if d := digits(trimmed); mobilePattern.MatchString(d) {
		return Identifier{Kind: MobileNumber, Value: d}
	}
	return Identifier{Kind: Invalid}
}

func digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}
