package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"agenda/internal/config"
	"agenda/internal/convo"
	"agenda/internal/db"
	"agenda/internal/domain"
	"agenda/internal/engine"
	"agenda/internal/extract"
	"agenda/internal/llm"
	"agenda/internal/migrate"
	"agenda/internal/repo"
	"agenda/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Agenda CLI",
	Long: `Agenda is a todo service with AI-assisted capture.
- Todos: work items with a title, due date and urgency; they live in workspaces.
- Workspaces: every user gets a Personal workspace; paid plans allow more.
- Capture: 'agenda parse' runs the conversational capture loop that pulls
  title, date and urgency out of free text, one question at a time.
- Reminders: natural-language reminders attached to todos; 'agenda remind check'
  dispatches the ones that are due.
- Event log: every change is recorded, view with 'agenda log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AGENDA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", ".", "data directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local-user", "user identifier")
	rootCmd.PersistentFlags().String("workspace", "", "workspace id")
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(todoCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(keyCmd())
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := viper.GetString("data-dir")
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := db.Open(db.Config{DataDir: dataDir})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Logger = logger
			e.Notifier = logNotifier{logger: logger}

			var ex *extract.Engine
			if apiKey := os.Getenv("AGENDA_GENAI_API_KEY"); apiKey != "" {
				client, err := llm.NewGenAI(cmd.Context(), apiKey, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				e.Completer = client
				e.Resolver = &llm.Resolver{Completer: client, Model: cfg.AI.StandardModel}
				ex = &extract.Engine{
					Completer:    client,
					Resolver:     e.Resolver,
					Store:        convo.NewSQLiteStore(conn),
					RecentTitles: e.Repo.RecentTitles,
					MaxAttempts:  cfg.AI.MaxAttempts,
					TTL:          time.Duration(cfg.Conversation.TTLHours) * time.Hour,
					Logger:       logger,
				}
			} else {
				logger.Warn("AGENDA_GENAI_API_KEY not set, AI endpoints disabled")
			}

			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv("AGENDA_JWT_SECRET"),
				Logger:    logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("AGENDA_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:          e,
				Extract:         ex,
				BasePath:        basePath,
				Auth:            authCfg,
				DevLoginEnabled: devLogin,
			})
			if err != nil {
				return err
			}

			go dispatchLoop(cmd.Context(), e, logger)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving agenda api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (local development only)")
	return cmd
}

// dispatchLoop sends due reminders once a minute until the context ends.
func dispatchLoop(ctx context.Context, e engine.Engine, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := e.DispatchDue(ctx)
			if err != nil {
				logger.Warn("reminder dispatch failed", zap.Error(err))
				continue
			}
			if sent > 0 {
				logger.Info("reminders dispatched", zap.Int("sent", sent))
			}
		}
	}
}

// logNotifier delivers reminders to the server log. Real channels (email,
// push) plug in through the same interface.
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) Notify(_ context.Context, rem domain.Reminder) error {
	n.logger.Info("reminder due",
		zap.String("reminder_id", rem.ID),
		zap.String("todo_id", rem.TodoID),
		zap.String("title", rem.Title),
		zap.String("time", rem.ReminderTime),
	)
	return nil
}

// --- migrate ---

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{DataDir: viper.GetString("data-dir")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d\n", v)
			return nil
		},
	}
}

// --- todo ---

func todoCmd() *cobra.Command {
	todo := &cobra.Command{
		Use:   "todo",
		Short: "Manage todos",
	}
	todo.AddCommand(todoAddCmd())
	todo.AddCommand(todoListCmd())
	todo.AddCommand(todoDoneCmd())
	todo.AddCommand(todoRescheduleCmd())
	todo.AddCommand(todoRmCmd())
	todo.AddCommand(todoCommentCmd())
	return todo
}

func todoAddCmd() *cobra.Command {
	var title, due string
	var urgency float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a todo",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTodo(ctx, engine.TodoCreateOptions{
					UserID:      viper.GetString("user"),
					Title:       title,
					DueDate:     due,
					Urgency:     urgency,
					WorkspaceID: viper.GetString("workspace"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&due, "due", "", "due date (ISO 8601)")
	cmd.Flags().Float64Var(&urgency, "urgency", 1, "urgency 1-5")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func todoListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				todos, err := e.ListTodos(ctx, viper.GetString("user"), viper.GetString("workspace"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(todos)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Urgency", "Done"})
				for _, t := range todos {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, due, t.Urgency, t.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func todoDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a todo completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed := true
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTodo(ctx, engine.TodoUpdateOptions{
					ID:        args[0],
					UserID:    viper.GetString("user"),
					Completed: &completed,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func todoRescheduleCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "reschedule <id>",
		Short: "Change a todo's due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTodo(ctx, engine.TodoUpdateOptions{
					ID:         args[0],
					UserID:     viper.GetString("user"),
					DueDate:    optionalString(due),
					DueDateSet: true,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "new due date (ISO 8601, empty clears)")
	return cmd
}

func todoRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTodo(ctx, args[0], viper.GetString("user"))
			})
		},
	}
	return cmd
}

func todoCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Comment on a todo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, args[0], viper.GetString("user"), args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

// --- workspace ---

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceCreateCmd())
	ws.AddCommand(workspaceRmCmd())
	return ws
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.EnsurePersonalWorkspace(ctx, viper.GetString("user")); err != nil {
					return err
				}
				items, err := e.ListWorkspaces(ctx, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func workspaceCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkspace(ctx, viper.GetString("user"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func workspaceRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a workspace and its todos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteWorkspace(ctx, args[0], viper.GetString("user"))
			})
		},
	}
	return cmd
}

// --- parse ---

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Capture a todo from free text, conversationally",
		Long: `Reads lines from stdin and runs the capture loop: the model extracts
title, date and urgency, asking for whatever is still missing. When all
fields are collected the todo is created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("AGENDA_GENAI_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("AGENDA_GENAI_API_KEY is required for capture")
			}
			logger := zap.NewNop()
			client, err := llm.NewGenAI(cmd.Context(), apiKey, logger)
			if err != nil {
				return err
			}
			defer client.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				resolver := &llm.Resolver{Completer: client, Model: e.Config.AI.StandardModel}
				ex := &extract.Engine{
					Completer:    client,
					Resolver:     resolver,
					Store:        convo.NewMemoryStore(),
					RecentTitles: e.Repo.RecentTitles,
					MaxAttempts:  e.Config.AI.MaxAttempts,
					TTL:          time.Duration(e.Config.Conversation.TTLHours) * time.Hour,
				}
				userID := viper.GetString("user")
				req := extract.Request{
					ConversationID: uuid.NewString(),
					UserID:         userID,
					WorkspaceID:    viper.GetString("workspace"),
					Model:          e.Config.AI.StandardModel,
				}
				scanner := bufio.NewScanner(os.Stdin)
				fmt.Println("What do you need to do?")
				for scanner.Scan() {
					req.Message = strings.TrimSpace(scanner.Text())
					if req.Message == "" {
						continue
					}
					res, err := ex.Parse(ctx, req)
					if err != nil {
						return err
					}
					fmt.Println(res.Text)
					if res.IsComplete {
						t, err := e.CreateTodo(ctx, engine.TodoCreateOptions{
							UserID:      userID,
							Title:       res.Values["title"],
							DueDate:     res.Values["date"],
							Urgency:     urgencyValue(res.Values["urgency"]),
							WorkspaceID: viper.GetString("workspace"),
						})
						if err != nil {
							return err
						}
						return printJSONOrTable(t)
					}
					req.CollectedValues = res.Values
					req.PendingFields = res.StillNeeded
					req.FieldAttempts = res.FieldAttempts
					if len(res.StillNeeded) > 0 {
						req.CurrentField = res.StillNeeded[0]
					}
				}
				return scanner.Err()
			})
		},
	}
	return cmd
}

func urgencyValue(s string) float64 {
	var v float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &v); err != nil {
		return 1
	}
	return v
}

// --- remind ---

func remindCmd() *cobra.Command {
	rem := &cobra.Command{
		Use:   "remind",
		Short: "Manage reminders",
	}
	rem.AddCommand(remindListCmd())
	rem.AddCommand(remindCheckCmd())
	return rem
}

func remindListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListReminders(ctx, viper.GetString("user"), status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, sent, cancelled)")
	return cmd
}

func remindCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dispatch reminders that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				e.Notifier = stdoutNotifier{}
				sent, err := e.DispatchDue(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d reminder(s) sent\n", sent)
				return nil
			})
		},
	}
	return cmd
}

type stdoutNotifier struct{}

func (stdoutNotifier) Notify(_ context.Context, rem domain.Reminder) error {
	fmt.Printf("REMINDER %s: %s (due %s)\n", rem.ID, rem.Title, rem.ReminderTime)
	return nil
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				latest, err := e.Repo.LatestEventID(ctx, viper.GetString("workspace"))
				if err != nil {
					return err
				}
				cursor := latest - int64(n)
				if cursor < 0 {
					cursor = 0
				}
				events, err := e.Repo.EventsAfter(ctx, n, cursor, viper.GetString("workspace"))
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default agenda.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("data-dir"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("data-dir"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- key ---

func keyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
	}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyListCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user")
				now := time.Now().UTC().Format(time.RFC3339)
				if err := e.Repo.EnsureUser(ctx, nil, userID, userID+"@local", now); err != nil {
					return err
				}
				raw := "agk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				k := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: now,
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, k); err != nil {
					return err
				}
				fmt.Println(raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func keyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, viper.GetString("user"))
				if err != nil {
					return err
				}
				for i := range items {
					items[i].KeyHash = ""
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	dataDir := viper.GetString("data-dir")
	conn, err := db.Open(db.Config{DataDir: dataDir})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	userID := viper.GetString("user")
	now := time.Now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureUser(ctx, nil, userID, userID+"@local", now); err != nil {
		return err
	}
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
