package extract

import "strings"

// timeSet is the trio of quick picks offered for one kind of todo.
type timeSet struct {
	keyword string
	times   [3]Suggestion
}

func pick(value, display string) Suggestion {
	return Suggestion{Type: "time", Value: value, Display: display}
}

// Order matters: the first keyword found in the title wins the whole set.
var keywordTimes = []timeSet{
	{"breakfast", [3]Suggestion{pick("07:00:00", "7 AM"), pick("08:00:00", "8 AM"), pick("09:00:00", "9 AM")}},
	{"lunch", [3]Suggestion{pick("12:00:00", "12 PM"), pick("13:00:00", "1 PM"), pick("13:30:00", "1:30 PM")}},
	{"dinner", [3]Suggestion{pick("18:00:00", "6 PM"), pick("19:00:00", "7 PM"), pick("20:00:00", "8 PM")}},
	{"meeting", [3]Suggestion{pick("09:00:00", "9 AM"), pick("14:00:00", "2 PM"), pick("16:00:00", "4 PM")}},
	{"call", [3]Suggestion{pick("10:00:00", "10 AM"), pick("14:00:00", "2 PM"), pick("15:30:00", "3:30 PM")}},
	{"workout", [3]Suggestion{pick("06:00:00", "6 AM"), pick("18:00:00", "6 PM"), pick("20:00:00", "8 PM")}},
	{"investor", [3]Suggestion{pick("09:30:00", "9:30 AM"), pick("11:00:00", "11 AM"), pick("14:00:00", "2 PM")}},
}

var defaultTimes = [3]Suggestion{pick("09:00:00", "9 AM"), pick("14:00:00", "2 PM"), pick("16:00:00", "4 PM")}

// timeSuggestions offers likely times for a titled todo that still needs a
// time of day. The first keyword present in the title picks the set;
// otherwise a business-hours default applies.
func timeSuggestions(title string) []Suggestion {
	lowered := strings.ToLower(title)
	for _, ts := range keywordTimes {
		if strings.Contains(lowered, ts.keyword) {
			return ts.times[:]
		}
	}
	return defaultTimes[:]
}
