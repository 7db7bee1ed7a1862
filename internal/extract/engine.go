// Package extract runs the slot-filling capture loop: free text in, a todo's
// title, date and urgency out, one model turn at a time.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"agenda/internal/convo"
	"agenda/internal/llm"
)

// Request is one user turn in a capture conversation. The client carries the
// conversation state; the store is only a fallback for continuity.
type Request struct {
	Message         string            `json:"message"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	CollectedValues map[string]string `json:"collected_values,omitempty"`
	PendingFields   []string          `json:"pending_fields,omitempty"`
	CurrentField    string            `json:"current_field,omitempty"`
	FieldAttempts   map[string]int    `json:"field_attempts,omitempty"`
	UserID          string            `json:"-"`
	WorkspaceID     string            `json:"workspace_id,omitempty"`
	Model           string            `json:"-"`
}

// Result is the engine's answer for one turn.
type Result struct {
	Text            string            `json:"text"`
	HTML            string            `json:"html"`
	Values          map[string]string `json:"values"`
	StillNeeded     []string          `json:"still_needed"`
	IsComplete      bool              `json:"is_complete"`
	Validation      Validation        `json:"validation"`
	FieldAttempts   map[string]int    `json:"field_attempts"`
	FallbackApplied bool              `json:"fallback_applied"`
	Suggestions     []Suggestion      `json:"suggestions,omitempty"`
}

// turnRecord is what gets cached per conversation.
type turnRecord struct {
	Input       string            `json:"input"`
	RawOutput   string            `json:"raw_output"`
	Values      map[string]string `json:"values"`
	StillNeeded []string          `json:"still_needed"`
	Attempts    map[string]int    `json:"attempts"`
	Validation  Validation        `json:"validation"`
	IsComplete  bool              `json:"is_complete"`
	UpdatedAt   string            `json:"updated_at"`
}

// Engine drives the capture loop against a Completer, with a deterministic
// fallback once a field has been asked about too often.
type Engine struct {
	Completer llm.Completer
	Resolver  *llm.Resolver
	Store     convo.Store
	// RecentTitles supplies workspace context for the prompt; optional.
	RecentTitles func(ctx context.Context, userID, workspaceID string, limit int) ([]string, error)
	MaxAttempts  int
	TTL          time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) maxAttempts() int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return defaultMaxAttempts
}

func (e *Engine) ttl() time.Duration {
	if e.TTL > 0 {
		return e.TTL
	}
	return 24 * time.Hour
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// Parse runs one turn. The attempt counter for the current field increments
// before the loop check, so the third ask already falls back.
func (e *Engine) Parse(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, fmt.Errorf("message is required")
	}

	collected := map[string]string{}
	for k, v := range req.CollectedValues {
		collected[k] = v
	}
	attempts := map[string]int{}
	for k, v := range req.FieldAttempts {
		attempts[k] = v
	}
	if len(collected) == 0 && len(attempts) == 0 && req.ConversationID != "" && e.Store != nil {
		var prev turnRecord
		if ok, err := e.Store.Get(ctx, convo.TodoKey(req.ConversationID), &prev); err == nil && ok {
			for k, v := range prev.Values {
				collected[k] = v
			}
			for k, v := range prev.Attempts {
				attempts[k] = v
			}
		}
	}

	fallback := false
	if req.CurrentField != "" {
		attempts[req.CurrentField]++
		if attempts[req.CurrentField] >= e.maxAttempts() {
			fallback = true
		}
	}

	var raw string
	if fallback {
		raw = fallbackReply(req.CurrentField, collected)
		e.logger().Info("extraction fallback",
			zap.String("field", req.CurrentField),
			zap.Int("attempts", attempts[req.CurrentField]))
	} else {
		system := e.systemPrompt(ctx, req, collected, attempts)
		var err error
		raw, err = e.Completer.Complete(ctx, req.Model, system, req.Message)
		if err != nil {
			return Result{}, fmt.Errorf("completion: %w", err)
		}
	}

	reply := parseReply(raw)
	for k, v := range reply.Values {
		collected[k] = v
	}

	if date, ok := collected[FieldDate]; ok && date != "" && !strings.Contains(date, "T") && e.Resolver != nil {
		if res, err := e.Resolver.Resolve(ctx, date, ""); err == nil {
			collected[FieldDate] = strings.TrimSuffix(res.DateTime, "Z")
		}
		// resolver errors keep the raw value; validation flags it below
	}

	validation := validateValues(collected)

	stillNeeded := reply.StillNeeded
	if stillNeeded == nil {
		stillNeeded = missingFields(collected)
	}
	// Completion is purely tag-driven; the model owns the claim.
	isComplete := reply.Complete

	text := reply.FollowUp
	if text == "" {
		text = stripTags(raw)
	}

	suggestions := reply.Suggestions
	if len(suggestions) == 0 && !isComplete && collected[FieldTitle] != "" && needsField(stillNeeded, "time") {
		suggestions = timeSuggestions(collected[FieldTitle])
	}

	result := Result{
		Text:            text,
		HTML:            raw,
		Values:          collected,
		StillNeeded:     stillNeeded,
		IsComplete:      isComplete,
		Validation:      validation,
		FieldAttempts:   attempts,
		FallbackApplied: fallback,
		Suggestions:     suggestions,
	}

	if req.ConversationID != "" && e.Store != nil {
		record := turnRecord{
			Input:       req.Message,
			RawOutput:   raw,
			Values:      collected,
			StillNeeded: stillNeeded,
			Attempts:    attempts,
			Validation:  validation,
			IsComplete:  isComplete,
			UpdatedAt:   e.now().UTC().Format(time.RFC3339),
		}
		if err := e.Store.Set(ctx, convo.TodoKey(req.ConversationID), record, e.ttl()); err != nil {
			e.logger().Warn("conversation cache write failed", zap.Error(err))
		}
	}

	e.logger().Debug("extraction turn",
		zap.Bool("complete", isComplete),
		zap.Bool("fallback", fallback),
		zap.Strings("still_needed", stillNeeded),
		zap.String("attempts", attemptsSummary(attempts)))
	return result, nil
}

func needsField(stillNeeded []string, field string) bool {
	for _, f := range stillNeeded {
		if strings.EqualFold(strings.TrimSpace(f), field) {
			return true
		}
	}
	return false
}

func (e *Engine) systemPrompt(ctx context.Context, req Request, collected map[string]string, attempts map[string]int) string {
	now := e.now().UTC()
	var b strings.Builder
	fmt.Fprintf(&b, `You help capture todos from natural language, one short turn at a time.
Current UTC time: %s (%s)

You MUST respond using these tags:
<title>...</title>        the todo title, once known
<date>YYYY-MM-DDTHH:MM:SS</date>  the due date, once known
<urgency>1-5</urgency>    urgency as a number, once known
<follow_up>...</follow_up>  one short question for whatever is missing
<still_needed>field, field</still_needed>  fields still missing
<suggestion type="time" value="HH:MM">display</suggestion>  optional quick picks
%s  alone, when title, date and urgency are all captured

Rules:
- Extract everything the message already contains before asking questions.
- Ask about ONE missing field per turn, the first one still needed.
- Never invent values the user did not imply.
- Dates may be relative ("tomorrow", "next friday"); resolve them to the future.
`, now.Format(time.RFC3339), now.Weekday(), todoCompleteTag)

	b.WriteString(`
Examples:
User: remind me to call mom tomorrow at 6pm, it's important
You: <title>Call mom</title><date>` + now.AddDate(0, 0, 1).Format("2006-01-02") + `T18:00:00</date><urgency>4</urgency>` + todoCompleteTag + `
User: buy milk
You: <title>Buy milk</title><follow_up>When should this be done?</follow_up><still_needed>date, urgency</still_needed>
`)

	if len(collected) > 0 {
		b.WriteString("\nAlready collected:\n")
		for _, f := range RequiredFields {
			if v := collected[f]; v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", f, v)
			}
		}
	}
	if len(req.PendingFields) > 0 {
		fmt.Fprintf(&b, "Still needed: %s\n", strings.Join(req.PendingFields, ", "))
	}
	if req.CurrentField != "" {
		fmt.Fprintf(&b, "Currently asking about: %s (attempts: %s)\n", req.CurrentField, attemptsSummary(attempts))
	}
	if e.RecentTitles != nil && req.UserID != "" && req.WorkspaceID != "" {
		if titles, err := e.RecentTitles(ctx, req.UserID, req.WorkspaceID, 10); err == nil && len(titles) > 0 {
			b.WriteString("Recent todos in this workspace:\n")
			for _, t := range titles {
				fmt.Fprintf(&b, "- %s\n", t)
			}
		}
	}
	return b.String()
}
