package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Validation reports field problems without blocking the flow. Downstream
// consumers clamp or default the values; this only informs the caller.
type Validation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

var datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// validateValues checks the merged values and clamps urgency in place.
func validateValues(values map[string]string) Validation {
	v := Validation{IsValid: true}
	if title, ok := values[FieldTitle]; ok && strings.TrimSpace(title) == "" {
		v.IsValid = false
		v.Errors = append(v.Errors, "title must not be empty")
	}
	if date, ok := values[FieldDate]; ok && date != "" && !datePrefixRe.MatchString(date) {
		v.IsValid = false
		v.Errors = append(v.Errors, "date must start with YYYY-MM-DDTHH:MM:SS")
	}
	if raw, ok := values[FieldUrgency]; ok && raw != "" {
		u, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			v.IsValid = false
			v.Errors = append(v.Errors, "urgency must be a number")
		} else {
			if u < 1 {
				u = 1
			}
			if u > 5 {
				u = 5
			}
			values[FieldUrgency] = formatUrgency(u)
		}
	}
	return v
}

func formatUrgency(u float64) string {
	return strconv.FormatFloat(u, 'f', -1, 64)
}

// ParseUrgency coerces a captured urgency string to a clamped float,
// defaulting to 1 when absent or unparseable.
func ParseUrgency(raw string) float64 {
	u, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1
	}
	if u < 1 {
		u = 1
	}
	if u > 5 {
		u = 5
	}
	return u
}

func attemptsSummary(attempts map[string]int) string {
	if len(attempts) == 0 {
		return "none"
	}
	var parts []string
	for _, f := range RequiredFields {
		if n, ok := attempts[f]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", f, n))
		}
	}
	return strings.Join(parts, ", ")
}
