package server

import (
	"encoding/json"

	"agenda/internal/domain"
	"agenda/internal/extract"
)

// Request payloads

type CreateTodoRequest struct {
	Title       string  `json:"title"`
	DueDate     *string `json:"due_date,omitempty"`
	Urgency     *int    `json:"urgency,omitempty" minimum:"1" maximum:"5"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
}

type UpdateTodoRequest struct {
	Completed   *bool   `json:"completed,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type CreateCommentRequest struct {
	Text string `json:"text"`
}

type CreateReminderRequest struct {
	Instruction string `json:"instruction,omitempty"`
}

type ParseTodoRequest struct {
	Message         string            `json:"message"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	CollectedValues map[string]string `json:"collected_values,omitempty"`
	PendingFields   []string          `json:"pending_fields,omitempty"`
	CurrentField    string            `json:"current_field,omitempty"`
	FieldAttempts   map[string]int    `json:"field_attempts,omitempty"`
	WorkspaceID     string            `json:"workspace_id,omitempty"`
}

type ResolveDateRequest struct {
	Text     string `json:"text"`
	Timezone string `json:"timezone,omitempty"`
}

type UpdateSettingsRequest struct {
	ReminderMinutes      *int    `json:"reminder_minutes,omitempty" minimum:"0" maximum:"1440"`
	AISuggestedReminders *bool   `json:"ai_suggested_reminders,omitempty"`
	WeeklyReview         *bool   `json:"weekly_review,omitempty"`
	Timezone             *string `json:"timezone,omitempty"`
	ShowInputAtBottom    *bool   `json:"show_input_at_bottom,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type CommentResponse struct {
	ID           string  `json:"id"`
	TodoID       string  `json:"todo_id"`
	UserID       string  `json:"user_id"`
	Text         string  `json:"text"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	AuthorName   *string `json:"author_name,omitempty"`
	AuthorAvatar *string `json:"author_avatar,omitempty"`
}

type TodoResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	WorkspaceID *string           `json:"workspace_id,omitempty"`
	Title       string            `json:"title"`
	DueDate     *string           `json:"due_date,omitempty"`
	Urgency     float64           `json:"urgency"`
	Completed   bool              `json:"completed"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
	UpdatedAt   string            `json:"updated_at" format:"date-time"`
	Comments    []CommentResponse `json:"comments"`
}

type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ReminderResponse struct {
	ID           string  `json:"id"`
	TodoID       string  `json:"todo_id"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	ReminderTime string  `json:"reminder_time" format:"date-time"`
	Status       string  `json:"status" enum:"pending,sent,cancelled"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type SettingsResponse struct {
	UserID               string `json:"user_id"`
	ReminderMinutes      int    `json:"reminder_minutes"`
	AISuggestedReminders bool   `json:"ai_suggested_reminders"`
	WeeklyReview         bool   `json:"weekly_review"`
	Timezone             string `json:"timezone"`
	ShowInputAtBottom    bool   `json:"show_input_at_bottom"`
	UpdatedAt            string `json:"updated_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	UserID      string         `json:"user_id"`
	Payload     map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned on creation.
	Key string `json:"key,omitempty"`
}

type MeResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Plan   string `json:"plan"`
	Source string `json:"source"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse(c)
}

func todoResponse(t domain.Todo) TodoResponse {
	comments := make([]CommentResponse, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, commentResponse(c))
	}
	return TodoResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		WorkspaceID: t.WorkspaceID,
		Title:       t.Title,
		DueDate:     t.DueDate,
		Urgency:     t.Urgency,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Comments:    comments,
	}
}

func mapTodos(in []domain.Todo) []TodoResponse {
	out := make([]TodoResponse, 0, len(in))
	for _, t := range in {
		out = append(out, todoResponse(t))
	}
	return out
}

func workspaceResponse(w domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse(w)
}

func mapWorkspaces(in []domain.Workspace) []WorkspaceResponse {
	out := make([]WorkspaceResponse, 0, len(in))
	for _, w := range in {
		out = append(out, workspaceResponse(w))
	}
	return out
}

func reminderResponse(r domain.Reminder) ReminderResponse {
	return ReminderResponse(r)
}

func mapReminders(in []domain.Reminder) []ReminderResponse {
	out := make([]ReminderResponse, 0, len(in))
	for _, r := range in {
		out = append(out, reminderResponse(r))
	}
	return out
}

func settingsResponse(s domain.UserSettings) SettingsResponse {
	return SettingsResponse(s)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		WorkspaceID: e.WorkspaceID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		UserID:      e.UserID,
		Payload:     decodeJSONMap(e.Payload),
	}
}

func extractRequest(req ParseTodoRequest, userID, model string) extract.Request {
	return extract.Request{
		Message:         req.Message,
		ConversationID:  req.ConversationID,
		CollectedValues: req.CollectedValues,
		PendingFields:   req.PendingFields,
		CurrentField:    req.CurrentField,
		FieldAttempts:   req.FieldAttempts,
		UserID:          userID,
		WorkspaceID:     req.WorkspaceID,
		Model:           model,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
