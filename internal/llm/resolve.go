package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrUnclearDate is returned when the model cannot pin the phrase to a time.
var ErrUnclearDate = errors.New("unclear date/time - please rephrase")

const unclearLiteral = "Unclear date/time - please rephrase."

// Resolution is the outcome of turning a natural-language date phrase into a
// concrete timestamp.
type Resolution struct {
	OriginalText      string `json:"original_text"`
	FormattedDateTime string `json:"formatted_date_time"`
	DateTime          string `json:"date_time" format:"date-time"`
}

// Resolver converts phrases like "next friday afternoon" via the completion
// model. The model answers inside a <TIME> tag; anything else is treated as
// ambiguous.
type Resolver struct {
	Completer Completer
	Model     string
	Now       func() time.Time
}

var timeTagRe = regexp.MustCompile(`(?is)<time>(.*?)</time>`)

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve interprets text as a date/time in the given IANA timezone.
// Dates without an explicit time default to 9:00 AM; past dates roll forward.
func (r *Resolver) Resolve(ctx context.Context, text, timezone string) (Resolution, error) {
	if strings.TrimSpace(text) == "" {
		return Resolution{}, errors.New("text is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	now := r.now().In(loc)

	system := fmt.Sprintf(`You convert natural language date expressions into exact timestamps.
Current date and time: %s (%s)
Current weekday: %s
Current month and year: %s

Rules:
- Always resolve to a FUTURE date. If the phrase names a day that already passed this week, use next week's occurrence.
- If no time of day is given, use 9:00 AM.
- Answer with exactly one tag: <TIME>YYYY-MM-DD HH:MM:SS</TIME>
- If the phrase cannot be interpreted as a date or time, answer: <TIME>%s</TIME>`,
		now.Format("2006-01-02 15:04:05"), loc.String(), now.Weekday(), now.Format("January 2006"), unclearLiteral)

	raw, err := r.Completer.Complete(ctx, r.Model, system, text)
	if err != nil {
		return Resolution{}, err
	}
	m := timeTagRe.FindStringSubmatch(raw)
	if m == nil {
		return Resolution{}, ErrUnclearDate
	}
	value := strings.TrimSpace(m[1])
	if value == "" || strings.EqualFold(value, unclearLiteral) {
		return Resolution{}, ErrUnclearDate
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", value, loc)
	if err != nil {
		return Resolution{}, ErrUnclearDate
	}
	return Resolution{
		OriginalText:      text,
		FormattedDateTime: parsed.Format("Monday, January 2, 2006 at 3:04 PM"),
		DateTime:          parsed.UTC().Format(time.RFC3339),
	}, nil
}
