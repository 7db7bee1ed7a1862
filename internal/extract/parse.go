package extract

import (
	"regexp"
	"strings"
)

// The model speaks a small tag protocol. Tags are matched non-greedily on a
// single line; anything the regexes don't recognize is ignored for the turn.
const (
	FieldTitle   = "title"
	FieldDate    = "date"
	FieldUrgency = "urgency"
)

// RequiredFields in capture order.
var RequiredFields = []string{FieldTitle, FieldDate, FieldUrgency}

const todoCompleteTag = "<todo_complete>"

var (
	titleRe       = regexp.MustCompile(`<title>(.*?)</title>`)
	dateRe        = regexp.MustCompile(`<date>(.*?)</date>`)
	urgencyRe     = regexp.MustCompile(`<urgency>(.*?)</urgency>`)
	followUpRe    = regexp.MustCompile(`<follow_up>(.*?)</follow_up>`)
	stillNeededRe = regexp.MustCompile(`<still_needed>(.*?)</still_needed>`)
	suggestionRe  = regexp.MustCompile(`<suggestion type="([^"]*)" value="([^"]*)">(.*?)</suggestion>`)
	anyTagRe      = regexp.MustCompile(`</?[a-z_]+(?: [^>]*)?/?>`)
)

// Suggestion is an actionable chip offered alongside a follow-up question.
type Suggestion struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Display string `json:"display"`
}

// parsedReply is one model turn decoded from the tag protocol.
type parsedReply struct {
	Values      map[string]string
	FollowUp    string
	StillNeeded []string
	Complete    bool
	Suggestions []Suggestion
}

func parseReply(raw string) parsedReply {
	p := parsedReply{Values: map[string]string{}}
	if m := titleRe.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		p.Values[FieldTitle] = strings.TrimSpace(m[1])
	}
	if m := dateRe.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		p.Values[FieldDate] = strings.TrimSpace(m[1])
	}
	if m := urgencyRe.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		p.Values[FieldUrgency] = strings.TrimSpace(m[1])
	}
	if m := followUpRe.FindStringSubmatch(raw); m != nil {
		p.FollowUp = strings.TrimSpace(m[1])
	}
	if m := stillNeededRe.FindStringSubmatch(raw); m != nil {
		for _, f := range strings.Split(m[1], ",") {
			if f = strings.TrimSpace(f); f != "" {
				p.StillNeeded = append(p.StillNeeded, f)
			}
		}
	}
	// Completion is a plain substring check: the tag has no closing pair.
	p.Complete = strings.Contains(raw, todoCompleteTag)
	for _, m := range suggestionRe.FindAllStringSubmatch(raw, -1) {
		p.Suggestions = append(p.Suggestions, Suggestion{
			Type:    m[1],
			Value:   m[2],
			Display: strings.TrimSpace(m[3]),
		})
	}
	return p
}

// stripTags removes every protocol tag, leaving the conversational text.
func stripTags(raw string) string {
	out := anyTagRe.ReplaceAllString(raw, "")
	return strings.TrimSpace(strings.Join(strings.Fields(out), " "))
}

func missingFields(values map[string]string) []string {
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(values[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
