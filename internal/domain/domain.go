package domain

type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type UserSettings struct {
	UserID               string `json:"user_id"`
	ReminderMinutes      int    `json:"reminder_minutes"`
	AISuggestedReminders bool   `json:"ai_suggested_reminders"`
	WeeklyReview         bool   `json:"weekly_review"`
	Timezone             string `json:"timezone"`
	ShowInputAtBottom    bool   `json:"show_input_at_bottom"`
	UpdatedAt            string `json:"updated_at" format:"date-time"`
}

type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type WorkspaceMember struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role" enum:"owner,member"`
	JoinedAt    string `json:"joined_at" format:"date-time"`
}

type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID *string   `json:"workspace_id,omitempty"`
	Title       string    `json:"title"`
	DueDate     *string   `json:"due_date,omitempty"`
	Urgency     float64   `json:"urgency"`
	Completed   bool      `json:"completed"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
	Comments    []Comment `json:"comments,omitempty"`
}

type Comment struct {
	ID           string  `json:"id"`
	TodoID       string  `json:"todo_id"`
	UserID       string  `json:"user_id"`
	Text         string  `json:"text"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	AuthorName   *string `json:"author_name,omitempty"`
	AuthorAvatar *string `json:"author_avatar,omitempty"`
}

type Reminder struct {
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

type Subscription struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	Plan             string  `json:"plan"`
	Status           string  `json:"status"`
	CurrentPeriodEnd *string `json:"current_period_end,omitempty" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	UserID      string `json:"user_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
