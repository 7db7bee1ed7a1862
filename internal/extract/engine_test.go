package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/convo"
	"agenda/internal/llm"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newEngine(fake *llm.Fake) *Engine {
	return &Engine{
		Completer: fake,
		Store:     convo.NewMemoryStore(),
		Now:       fixedNow,
	}
}

func TestParseExtractsAllFieldsInOneTurn(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Call mom</title><date>2024-06-02T18:00:00</date><urgency>4</urgency><todo_complete>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "call mom tomorrow at 6pm, important"})
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, "Call mom", res.Values[FieldTitle])
	assert.Equal(t, "2024-06-02T18:00:00", res.Values[FieldDate])
	assert.Equal(t, "4", res.Values[FieldUrgency])
	assert.Empty(t, res.StillNeeded)
	assert.False(t, res.FallbackApplied)
}

func TestParseFollowUpAndStillNeeded(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Buy milk</title><follow_up>When should this be done?</follow_up><still_needed>date, urgency</still_needed>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "buy milk"})
	require.NoError(t, err)
	assert.False(t, res.IsComplete)
	assert.Equal(t, "When should this be done?", res.Text)
	assert.Equal(t, []string{"date", "urgency"}, res.StillNeeded)
}

func TestParseMalformedOutputYieldsNoFields(t *testing.T) {
	fake := &llm.Fake{Responses: []string{"Sure, I can help with that!"}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "buy milk"})
	require.NoError(t, err)
	assert.Empty(t, res.Values[FieldTitle])
	assert.False(t, res.IsComplete)
	assert.Equal(t, []string{"title", "date", "urgency"}, res.StillNeeded)
	assert.Equal(t, "Sure, I can help with that!", res.Text)
}

func TestAttemptIncrementsBeforeLoopCheck(t *testing.T) {
	// Two prior attempts: this turn increments to 3 and must fall back
	// without calling the model at all.
	fake := &llm.Fake{Responses: []string{"should not be used"}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{
		Message:         "dunno",
		CurrentField:    FieldUrgency,
		CollectedValues: map[string]string{FieldTitle: "Ship report", FieldDate: "2024-06-03T09:00:00"},
		FieldAttempts:   map[string]int{FieldUrgency: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.FallbackApplied)
	assert.Equal(t, 3, res.FieldAttempts[FieldUrgency])
	assert.Empty(t, fake.Prompts, "fallback turn must not call the completer")
}

func TestFallbackUrgencyFromCollectedTitle(t *testing.T) {
	// The keyword scan reads the collected title, not the stuck message.
	e := newEngine(&llm.Fake{})
	for _, tc := range []struct {
		title string
		want  string
	}{
		{"Urgent investor deck", "4.5"},
		{"Deadline for taxes", "4.5"},
		{"Prep deck", "3"},
	} {
		res, err := e.Parse(context.Background(), Request{
			Message:         "whenever really",
			CurrentField:    FieldUrgency,
			CollectedValues: map[string]string{FieldTitle: tc.title, FieldDate: "2024-06-03T09:00:00"},
			FieldAttempts:   map[string]int{FieldUrgency: 2},
		})
		require.NoError(t, err)
		assert.True(t, res.FallbackApplied)
		assert.Equal(t, tc.want, res.Values[FieldUrgency], "title %q", tc.title)
		assert.True(t, res.IsComplete, "all fields present after fallback")
	}
}

func TestFallbackDateOffersToday(t *testing.T) {
	e := newEngine(&llm.Fake{})
	res, err := e.Parse(context.Background(), Request{
		Message:         "not sure",
		CurrentField:    FieldDate,
		CollectedValues: map[string]string{FieldTitle: "Water plants"},
		FieldAttempts:   map[string]int{FieldDate: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.FallbackApplied)
	assert.Empty(t, res.Values[FieldDate], "the offer does not set a date")
	assert.Contains(t, res.Text, "set this for today")
	assert.False(t, res.IsComplete)
	assert.Equal(t, []string{"date", "urgency"}, res.StillNeeded)
}

func TestFallbackTitleAsksToRephrase(t *testing.T) {
	e := newEngine(&llm.Fake{})
	res, err := e.Parse(context.Background(), Request{
		Message:       "blah",
		CurrentField:  FieldTitle,
		FieldAttempts: map[string]int{FieldTitle: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.FallbackApplied)
	assert.Contains(t, res.Text, "rephrase")
	assert.Empty(t, res.Values[FieldTitle])
}

func TestCompletionIsTagDriven(t *testing.T) {
	// The complete tag alone decides completion, even with fields missing.
	fake := &llm.Fake{Responses: []string{
		`<title>Buy milk</title><todo_complete>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "buy milk"})
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
}

func TestValidationClampsUrgencyWithoutBlocking(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Taxes</title><date>2024-06-10T09:00:00</date><urgency>9</urgency><todo_complete>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "do taxes"})
	require.NoError(t, err)
	assert.True(t, res.IsComplete, "validation is informational only")
	assert.Equal(t, "5", res.Values[FieldUrgency])
}

func TestValidationFlagsBadDatePrefix(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Taxes</title><date>someday soonT</date><urgency>2</urgency><todo_complete>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "do taxes"})
	require.NoError(t, err)
	assert.False(t, res.Validation.IsValid)
	assert.True(t, res.IsComplete, "bad date is flagged, not blocking")
}

func TestDateWithoutTGoesThroughResolver(t *testing.T) {
	resolverFake := &llm.Fake{Responses: []string{"<TIME>2024-06-07 15:00:00</TIME>"}}
	fake := &llm.Fake{Responses: []string{
		`<title>Dentist</title><date>next friday</date><urgency>2</urgency><todo_complete>`,
	}}
	e := newEngine(fake)
	e.Resolver = &llm.Resolver{Completer: resolverFake, Model: "m", Now: fixedNow}
	res, err := e.Parse(context.Background(), Request{Message: "dentist next friday"})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-07T15:00:00", res.Values[FieldDate])
}

func TestDateResolverErrorKeepsRawValue(t *testing.T) {
	resolverFake := &llm.Fake{Responses: []string{"no tag here"}}
	fake := &llm.Fake{Responses: []string{
		`<title>Dentist</title><date>next friday</date><urgency>2</urgency><todo_complete>`,
	}}
	e := newEngine(fake)
	e.Resolver = &llm.Resolver{Completer: resolverFake, Model: "m", Now: fixedNow}
	res, err := e.Parse(context.Background(), Request{Message: "dentist next friday"})
	require.NoError(t, err)
	assert.Equal(t, "next friday", res.Values[FieldDate])
	assert.False(t, res.Validation.IsValid)
}

func TestTimeSuggestionsWhenTimeStillNeeded(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Lunch with Sam</title><follow_up>What time?</follow_up><still_needed>time, urgency</still_needed>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "lunch with sam"})
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 3)
	assert.Equal(t, "12:00:00", res.Suggestions[0].Value)
	assert.Equal(t, "12 PM", res.Suggestions[0].Display)
	assert.Equal(t, "13:30:00", res.Suggestions[2].Value)
}

func TestNoTimeSuggestionsWhenOnlyDateStillNeeded(t *testing.T) {
	// "date" in still_needed is not the cue; only "time" is.
	fake := &llm.Fake{Responses: []string{
		`<title>Lunch with Sam</title><follow_up>When?</follow_up><still_needed>date, urgency</still_needed>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "lunch with sam"})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
}

func TestConversationStateRoundTrip(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<title>Buy milk</title><follow_up>When?</follow_up><still_needed>date, urgency</still_needed>`,
		`<date>2024-06-02T09:00:00</date><follow_up>How urgent?</follow_up><still_needed>urgency</still_needed>`,
	}}
	e := newEngine(fake)
	_, err := e.Parse(context.Background(), Request{Message: "buy milk", ConversationID: "c1"})
	require.NoError(t, err)

	// Second turn omits client state; the store fills it in.
	res, err := e.Parse(context.Background(), Request{Message: "tomorrow morning", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", res.Values[FieldTitle])
	assert.Equal(t, "2024-06-02T09:00:00", res.Values[FieldDate])
}

func TestCacheLossStartsOver(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`<follow_up>What is the todo?</follow_up><still_needed>title, date, urgency</still_needed>`,
	}}
	e := newEngine(fake)
	res, err := e.Parse(context.Background(), Request{Message: "tomorrow", ConversationID: "gone"})
	require.NoError(t, err)
	assert.Empty(t, res.Values[FieldTitle])
	assert.Equal(t, []string{"title", "date", "urgency"}, res.StillNeeded)
}

func TestParseReplyNonGreedyTags(t *testing.T) {
	p := parseReply(`<title>a</title> junk <title>b</title><urgency> 3 </urgency>`)
	assert.Equal(t, "a", p.Values[FieldTitle])
	assert.Equal(t, "3", p.Values[FieldUrgency])
}

func TestSuggestionElementsParsed(t *testing.T) {
	p := parseReply(`<follow_up>When?</follow_up><suggestion type="time" value="09:00">9:00 AM</suggestion><suggestion type="time" value="14:00">2:00 PM</suggestion>`)
	require.Len(t, p.Suggestions, 2)
	assert.Equal(t, Suggestion{Type: "time", Value: "09:00", Display: "9:00 AM"}, p.Suggestions[0])
}
