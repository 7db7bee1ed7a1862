package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"agenda/internal/domain"
	"agenda/internal/engine"
	"agenda/internal/extract"
	"agenda/internal/llm"
	"agenda/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Extract  *extract.Engine
	BasePath string
	Auth     AuthConfig
	// DevLoginEnabled exposes POST /auth/dev/login which mints a JWT for any
	// email. Local development only.
	DevLoginEnabled bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"plan_limit"`
	Message string         `json:"message" example:"workspace limit reached for plan"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"plan\":\"free\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Agenda API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Agenda API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerTodos(group, cfg.Engine)
	registerComments(group, cfg.Engine)
	registerWorkspaces(group, cfg.Engine)
	registerReminders(group, cfg.Engine)
	registerAI(group, cfg.Engine, cfg.Extract)
	registerSettings(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	if cfg.DevLoginEnabled {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if se, ok := err.(huma.StatusError); ok {
		return se
	}
	switch {
	case errors.Is(err, engine.ErrWorkspaceLimit):
		return newAPIError(http.StatusForbidden, "plan_limit", err.Error(), nil)
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrNotMember),
		errors.Is(err, engine.ErrPersonalWorkspace):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, llm.ErrUnclearDate):
		return newAPIError(http.StatusUnprocessableEntity, "unclear_date", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must be") ||
		strings.Contains(lowered, "unknown timezone"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case strings.Contains(lowered, "completion"), strings.Contains(lowered, "could not understand"):
		return newAPIError(http.StatusBadGateway, "ai_unavailable", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Agenda API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and plan",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		plan, err := e.PlanFor(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{UserID: p.UserID, Email: p.Email, Plan: plan, Source: p.Source}}, nil
	})
}

func registerTodos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-todo",
		Method:        http.MethodPost,
		Path:          "/todos",
		Summary:       "Create todo",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTodoRequest `json:"body"`
	}) (*struct {
		Body TodoResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", map[string]any{"field": "title"})
		}
		opts := engine.TodoCreateOptions{
			UserID: userID,
			Title:  input.Body.Title,
		}
		if input.Body.DueDate != nil {
			opts.DueDate = *input.Body.DueDate
		}
		if input.Body.Urgency != nil {
			opts.Urgency = float64(*input.Body.Urgency)
		}
		if input.Body.WorkspaceID != nil {
			opts.WorkspaceID = *input.Body.WorkspaceID
		}
		t, err := e.CreateTodo(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodoResponse `json:"body"`
		}{Body: todoResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-todos",
		Method:      http.MethodGet,
		Path:        "/todos",
		Summary:     "List todos",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `query:"workspace_id"`
	}) (*struct {
		Body []TodoResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTodos(ctx, userID, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TodoResponse `json:"body"`
		}{Body: mapTodos(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-todo",
		Method:      http.MethodGet,
		Path:        "/todos/{id}",
		Summary:     "Get todo",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TodoResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTodo(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodoResponse `json:"body"`
		}{Body: todoResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-todo",
		Method:      http.MethodPatch,
		Path:        "/todos/{id}",
		Summary:     "Update todo",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTodoRequest `json:"body"`
	}) (*struct {
		Body TodoResponse `json:"body"`
	}, error) {
		raw := bodyBytes(ctx)
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// Distinguish absent fields from explicit nulls.
		var rawFields map[string]json.RawMessage
		_ = json.Unmarshal(raw, &rawFields)
		_, dueDateSet := rawFields["due_date"]
		_, workspaceSet := rawFields["workspace_id"]
		t, err := e.UpdateTodo(ctx, engine.TodoUpdateOptions{
			ID:             input.ID,
			UserID:         userID,
			Completed:      input.Body.Completed,
			DueDate:        input.Body.DueDate,
			DueDateSet:     dueDateSet,
			WorkspaceID:    input.Body.WorkspaceID,
			WorkspaceIDSet: workspaceSet,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodoResponse `json:"body"`
		}{Body: todoResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-todo",
		Method:      http.MethodDelete,
		Path:        "/todos/{id}",
		Summary:     "Delete todo",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTodo(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/todos/{id}/comments",
		Summary:       "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body CreateCommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.ID, userID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: commentResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-comment",
		Method:      http.MethodDelete,
		Path:        "/todos/{id}/comments/{comment_id}",
		Summary:     "Delete comment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		CommentID string `path:"comment_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteComment(ctx, input.ID, input.CommentID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body WorkspaceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWorkspace(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkspaceResponse `json:"body"`
		}{Body: workspaceResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkspaceResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// The personal workspace exists from first listing on.
		if _, err := e.EnsurePersonalWorkspace(ctx, userID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListWorkspaces(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkspaceResponse `json:"body"`
		}{Body: mapWorkspaces(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-workspace",
		Method:      http.MethodDelete,
		Path:        "/workspaces/{id}",
		Summary:     "Delete workspace",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkspace(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReminders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reminder",
		Method:        http.MethodPost,
		Path:          "/todos/{id}/reminders",
		Summary:       "Create reminder for todo",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body CreateReminderRequest `json:"body"`
	}) (*struct {
		Body ReminderResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := e.CreateReminder(ctx, input.ID, userID, input.Body.Instruction)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderResponse `json:"body"`
		}{Body: reminderResponse(rem)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders",
		Summary:     "List reminders",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,sent,cancelled,"`
	}) (*struct {
		Body []ReminderResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListReminders(ctx, userID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReminderResponse `json:"body"`
		}{Body: mapReminders(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-reminder",
		Method:      http.MethodPost,
		Path:        "/reminders/{id}/cancel",
		Summary:     "Cancel reminder",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReminderResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := e.CancelReminder(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderResponse `json:"body"`
		}{Body: reminderResponse(rem)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-reminder",
		Method:      http.MethodDelete,
		Path:        "/reminders/{id}",
		Summary:     "Delete reminder",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteReminder(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAI(api huma.API, e engine.Engine, ex *extract.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "parse-todo",
		Method:      http.MethodPost,
		Path:        "/ai/parse",
		Summary:     "Parse a todo from natural language",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ParseTodoRequest `json:"body"`
	}) (*struct {
		Body extract.Result `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if ex == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "ai_unavailable", "extraction engine not configured", nil)
		}
		if strings.TrimSpace(input.Body.Message) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", map[string]any{"field": "message"})
		}
		res, err := ex.Parse(ctx, extractRequest(input.Body, userID, e.ModelFor(ctx, userID)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body extract.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-date",
		Method:      http.MethodPost,
		Path:        "/ai/resolve-date",
		Summary:     "Resolve a natural language date",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ResolveDateRequest `json:"body"`
	}) (*struct {
		Body llm.Resolution `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if e.Resolver == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "ai_unavailable", "date resolver not configured", nil)
		}
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", map[string]any{"field": "text"})
		}
		tz := input.Body.Timezone
		if tz == "" {
			if s, err := e.GetSettings(ctx, userID); err == nil {
				tz = s.Timezone
			}
		}
		res, err := e.Resolver.Resolve(ctx, input.Body.Text, tz)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body llm.Resolution `json:"body"`
		}{Body: res}, nil
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Get user settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSettings(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: settingsResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Update user settings",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UpdateSettingsRequest `json:"body"`
	}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSettings(ctx, userID, engine.SettingsUpdate{
			ReminderMinutes:      input.Body.ReminderMinutes,
			AISuggestedReminders: input.Body.AISuggestedReminders,
			WeeklyReview:         input.Body.WeeklyReview,
			Timezone:             input.Body.Timezone,
			ShowInputAtBottom:    input.Body.ShowInputAtBottom,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: settingsResponse(s)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		After       int64  `query:"after"`
		Limit       int    `query:"limit" default:"50"`
		WorkspaceID string `query:"workspace_id"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := e.Repo.EventsAfter(ctx, limit+1, input.After, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := "agk_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		key := domain.APIKey{
			ID:        uuid.New().String(),
			UserID:    userID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, CreatedAt: key.CreatedAt, Key: raw}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/keys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, k := range keys {
			if k.ID == input.ID {
				if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
					return nil, handleError(err)
				}
				return &struct{}{}, nil
			}
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
	})
}

func registerDevAuth(api huma.API, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development JWT",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Email string `json:"email" format:"email"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		email := strings.TrimSpace(input.Body.Email)
		if email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		now := time.Now().UTC()
		claims := jwtClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "dev-" + repo.HashAPIKey(email)[:12],
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			},
			Email: email,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(auth.JWTSecret))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token, "user_id": claims.Subject}}, nil
	})
}
