package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mwrona/receiptor/internal/schema"
)

// ValidationError reports a rejected field value. The stage is not
// advanced and no collected value is stored when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var (
	moneyStrip   = regexp.MustCompile(`[^0-9.,-]`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizePrice strips currency symbols and whitespace, accepts a comma
// as the decimal separator and requires a value greater than zero. The
// returned string is the cleaned form that is stored and re-parsed at
// completion.
func NormalizePrice(raw string) (float64, string, error) {
	cleaned := moneyStrip.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return 0, "", &ValidationError{Field: schema.FieldPrice, Reason: "must be a positive number"}
	}
	return v, cleaned, nil
}

// NormalizeTaxes is NormalizePrice for the taxes field, except any
// numeric value is accepted; a negative amount reads as a discount.
func NormalizeTaxes(raw string) (float64, string, error) {
	cleaned := moneyStrip.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, "", &ValidationError{Field: schema.FieldTaxes, Reason: "must be a number"}
	}
	return v, cleaned, nil
}

// ParseQuantity requires a number of at least one. Fractional
// quantities are accepted.
func ParseQuantity(raw string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || n < 1 {
		return 0, &ValidationError{Field: schema.FieldQuantity, Reason: "must be a number of at least 1"}
	}
	return n, nil
}

// ValidateImageURL requires an absolute http or https URL.
func ValidateImageURL(raw string) error {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return nil
	}
	return &ValidationError{Field: schema.FieldImageURL, Reason: "must start with http:// or https://"}
}

// ValidateEmail checks the address shape used by the settings flow.
func ValidateEmail(field, raw string) error {
	if emailPattern.MatchString(raw) {
		return nil
	}
	return &ValidationError{Field: field, Reason: "is not a valid email address"}
}

// normalizeStage trims, defaults and validates the submitted values for
// one stage. Only keys belonging to the stage are kept; nothing is
// stored if any field fails.
func normalizeStage(fields []schema.Field, values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))

	for _, f := range fields {
		v := strings.TrimSpace(values[f.Key])
		if v == "" && f.Default != "" {
			v = f.Default
		}
		if v == "" {
			if f.Required {
				return nil, &ValidationError{Field: f.Key, Reason: "is required"}
			}
			continue
		}

		switch f.Key {
		case schema.FieldPrice:
			_, cleaned, err := NormalizePrice(v)
			if err != nil {
				return nil, err
			}
			v = cleaned
		case schema.FieldTaxes:
			_, cleaned, err := NormalizeTaxes(v)
			if err != nil {
				return nil, err
			}
			v = cleaned
		case schema.FieldQuantity:
			n, err := ParseQuantity(v)
			if err != nil {
				return nil, err
			}
			v = strconv.FormatFloat(n, 'f', -1, 64)
		case schema.FieldImageURL:
			if err := ValidateImageURL(v); err != nil {
				return nil, err
			}
		case schema.FieldUserEmail:
			if err := ValidateEmail(f.Key, v); err != nil {
				return nil, err
			}
		}

		out[f.Key] = v
	}

	return out, nil
}
