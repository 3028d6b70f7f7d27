// Package validation provides centralized input validation for hivewatch.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Label Validation
// =============================================================================

// LabelRules defines the validation rules for species, role and habitat labels.
type LabelRules struct {
	MinLength    int
	MaxLength    int
	AllowSpaces  bool
	AllowHyphens bool

	// AllowUnders stays false for labels that end up in composite sketch keys,
	// which are joined with '_'.
	AllowUnders bool
}

// DefaultLabelRules returns the default rules for event labels.
func DefaultLabelRules() LabelRules {
	return LabelRules{
		MinLength:    1,
		MaxLength:    64,
		AllowSpaces:  true,
		AllowHyphens: true,
		AllowUnders:  false,
	}
}

// IDRules returns rules for event identifiers.
func IDRules() LabelRules {
	return LabelRules{
		MinLength:    1,
		MaxLength:    128,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateLabel validates a label according to the given rules.
func ValidateLabel(label string, rules LabelRules) error {
	if len(label) < rules.MinLength {
		return fmt.Errorf("too short: minimum %d characters required", rules.MinLength)
	}
	if len(label) > rules.MaxLength {
		return fmt.Errorf("too long: maximum %d characters allowed", rules.MaxLength)
	}
	if strings.TrimSpace(label) != label {
		return fmt.Errorf("leading or trailing whitespace")
	}

	for i, r := range label {
		if r < 32 || r == 127 {
			return fmt.Errorf("control character at position %d", i)
		}
		if !isAllowedLabelChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedLabelChar(r rune, rules LabelRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ':
		return rules.AllowSpaces
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateSpecies validates a species label with default rules.
func ValidateSpecies(species string) error {
	if err := ValidateLabel(species, DefaultLabelRules()); err != nil {
		return fmt.Errorf("species %q: %w", species, err)
	}
	return nil
}

// ValidateRole validates a role label with default rules.
func ValidateRole(role string) error {
	if err := ValidateLabel(role, DefaultLabelRules()); err != nil {
		return fmt.Errorf("role %q: %w", role, err)
	}
	return nil
}

// ValidateHabitat validates a habitat label with default rules.
func ValidateHabitat(habitat string) error {
	if err := ValidateLabel(habitat, DefaultLabelRules()); err != nil {
		return fmt.Errorf("habitat %q: %w", habitat, err)
	}
	return nil
}

// ValidateID validates an event identifier.
func ValidateID(id string) error {
	if err := ValidateLabel(id, IDRules()); err != nil {
		return fmt.Errorf("id %q: %w", id, err)
	}
	return nil
}

// =============================================================================
// Numeric Validation
// =============================================================================

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// ValidateAge checks that an insect age is not negative.
func ValidateAge(age int) error {
	if age < 0 {
		return fmt.Errorf("age %d cannot be negative", age)
	}
	return nil
}

// =============================================================================
// Sketch Key Construction
// =============================================================================

// KeySeparator joins label components in composite sketch keys.
const KeySeparator = "_"

// JoinKey builds a composite key such as "spider_queen_birth".
func JoinKey(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}
