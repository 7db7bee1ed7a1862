package extract

import (
	"fmt"
	"strings"
)

// After this many attempts on the same field the engine stops asking the
// model and answers deterministically.
const defaultMaxAttempts = 3

var urgencyKeywords = []string{"urgent", "important", "critical", "deadline", "asap", "immediately", "investor"}

func titleSuggestsHighUrgency(title string) bool {
	lowered := strings.ToLower(title)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// fallbackReply synthesizes a well-formed tagged message for a stuck field.
// The result goes through the same parser as a real model turn. Urgency is
// the only field that gets a concrete value, read off the collected title;
// a stuck date only produces the offer to default to today, leaving the
// field uncollected.
func fallbackReply(field string, collected map[string]string) string {
	var b strings.Builder
	switch field {
	case FieldUrgency:
		urgency := 3.0
		if titleSuggestsHighUrgency(collected[FieldTitle]) {
			urgency = 4.5
		}
		fmt.Fprintf(&b, "<urgency>%.1f</urgency>", urgency)
		fmt.Fprintf(&b, "<follow_up>I'll set this to %.1f out of 5 urgency based on the description. You can adjust this later.</follow_up>", urgency)
	case FieldDate:
		b.WriteString("<follow_up>I'll need a specific date and time. Would you like me to set this for today?</follow_up>")
	default:
		b.WriteString("<follow_up>Could you rephrase that more simply? Just tell me what the todo is about.</follow_up>")
	}

	merged := map[string]string{}
	for k, v := range collected {
		merged[k] = v
	}
	out := b.String()
	for _, m := range []struct{ field, open, close string }{
		{FieldTitle, "<title>", "</title>"},
		{FieldDate, "<date>", "</date>"},
		{FieldUrgency, "<urgency>", "</urgency>"},
	} {
		if i := strings.Index(out, m.open); i >= 0 {
			if j := strings.Index(out[i:], m.close); j >= 0 {
				merged[m.field] = out[i+len(m.open) : i+j]
			}
		}
	}
	if missing := missingFields(merged); len(missing) > 0 {
		fmt.Fprintf(&b, "<still_needed>%s</still_needed>", strings.Join(missing, ", "))
	} else {
		b.WriteString(todoCompleteTag)
	}
	return b.String()
}
