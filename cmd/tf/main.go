package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskflow/internal/api"
	"taskflow/internal/config"
	"taskflow/internal/devserver"
	"taskflow/internal/domain"
	"taskflow/internal/notify"
	"taskflow/internal/push"
	"taskflow/internal/session"
	"taskflow/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tf",
	Short: "TaskFlow CLI",
	Long: `TaskFlow is a client for the TaskFlow project/task backend.
- Workspace: your .taskflow directory holding session state and config.
- Session: login stores the bearer token locally; logout clears it.
- Tasks: work items with status (TODO/IN_PROGRESS/DONE/BLOCKED) and priority.
- Projects: containers that own tasks.
- Watch: subscribe to live task mutations over the push channel.
- Dev serve: run a local API + websocket backend for development.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := session.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("TASKFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().String("ws-url", "", "push channel URL (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("ws-url", rootCmd.PersistentFlags().Lookup("ws-url"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(devCmd())
}

// --- auth ---

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password required")
			}
			return withStores(cmd.Context(), func(ctx context.Context, env *clientEnv) error {
				if err := env.Auth.Login(ctx, domain.LoginCredentials{Username: username, Password: password}); err != nil {
					return err
				}
				snap := env.Auth.Snapshot()
				return printJSONOrTable(snap.User)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func registerCmd() *cobra.Command {
	var username, email, password, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password required")
			}
			return withStores(cmd.Context(), func(ctx context.Context, env *clientEnv) error {
				return env.Auth.Register(ctx, domain.RegisterData{
					Username:  username,
					Email:     email,
					Password:  password,
					FirstName: optionalString(firstName),
					LastName:  optionalString(lastName),
				})
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd.Context(), func(ctx context.Context, env *clientEnv) error {
				env.Auth.Logout()
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(sess *session.Store) error {
				user, err := sess.LoadUser()
				if err != nil {
					if errors.Is(err, session.ErrNotFound) {
						return fmt.Errorf("not logged in")
					}
					return err
				}
				return printJSONOrTable(user)
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tsk.AddCommand(taskListCmd())
	tsk.AddCommand(taskShowCmd())
	tsk.AddCommand(taskCreateCmd())
	tsk.AddCommand(taskUpdateCmd())
	tsk.AddCommand(taskStatusCmd())
	tsk.AddCommand(taskDeleteCmd())
	return tsk
}

func taskListCmd() *cobra.Command {
	var page, size int
	var status, priority, search string
	var assigneeID, projectID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.Client) error {
				filters := domain.TaskFilters{
					Status:   domain.TaskStatus(status),
					Priority: domain.TaskPriority(priority),
					Search:   search,
				}
				if assigneeID != 0 {
					filters.AssigneeID = &assigneeID
				}
				if projectID != 0 {
					filters.ProjectID = &projectID
				}
				result, err := c.ListTasks(ctx, filters, api.PageRequest{Page: &page, Size: &size})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Project", "Assignee"})
				for _, t := range result.Content {
					assignee := ""
					if t.AssigneeName != nil {
						assignee = *t.AssigneeName
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.ProjectName, assignee})
				}
				tw.Render()
				fmt.Printf("page %d/%d (%d tasks)\n", result.Number+1, result.TotalPages, result.TotalElements)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number (0-based)")
	cmd.Flags().IntVar(&size, "size", 20, "page size")
	cmd.Flags().StringVar(&status, "status", "", "status filter (TODO|IN_PROGRESS|DONE|BLOCKED)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter (LOW|MEDIUM|HIGH|URGENT)")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().StringVar(&search, "search", "", "text search")
	return cmd
}

func taskShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				task, err := c.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, description, status, priority, dueDate string
	var projectID, assigneeID, categoryID int64
	var estimatedHours float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			if projectID == 0 {
				return fmt.Errorf("--project required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				data := domain.CreateTaskData{
					Title:       title,
					Description: optionalString(description),
					Status:      domain.TaskStatus(status),
					Priority:    domain.TaskPriority(priority),
					ProjectID:   projectID,
					DueDate:     optionalString(dueDate),
				}
				if assigneeID != 0 {
					data.AssigneeID = &assigneeID
				}
				if categoryID != 0 {
					data.CategoryID = &categoryID
				}
				if estimatedHours != 0 {
					data.EstimatedHours = &estimatedHours
				}
				task, err := c.CreateTask(ctx, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default TODO)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (default MEDIUM)")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&estimatedHours, "estimated-hours", 0, "estimated hours")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var id int64
	var title, description, status, priority, dueDate string
	var assigneeID int64
	var estimatedHours, actualHours float64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a task (only flags given are sent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				var data domain.UpdateTaskData
				if cmd.Flags().Changed("title") {
					data.Title = &title
				}
				if cmd.Flags().Changed("description") {
					data.Description = &description
				}
				if cmd.Flags().Changed("status") {
					st := domain.TaskStatus(status)
					data.Status = &st
				}
				if cmd.Flags().Changed("priority") {
					p := domain.TaskPriority(priority)
					data.Priority = &p
				}
				if cmd.Flags().Changed("assignee") {
					data.AssigneeID = &assigneeID
				}
				if cmd.Flags().Changed("due") {
					data.DueDate = &dueDate
				}
				if cmd.Flags().Changed("estimated-hours") {
					data.EstimatedHours = &estimatedHours
				}
				if cmd.Flags().Changed("actual-hours") {
					data.ActualHours = &actualHours
				}
				task, err := c.UpdateTask(ctx, id, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&estimatedHours, "estimated-hours", 0, "estimated hours")
	cmd.Flags().Float64Var(&actualHours, "actual-hours", 0, "actual hours")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var id int64
	var status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Change a task's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 || status == "" {
				return fmt.Errorf("--id and --status required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				task, err := c.UpdateTaskStatus(ctx, id, domain.TaskStatus(status))
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVar(&status, "status", "", "new status (TODO|IN_PROGRESS|DONE|BLOCKED)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				return c.DeleteTask(ctx, id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.Client) error {
				projects, err := c.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Owner", "Active"})
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.OwnerName, p.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				project, err := c.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(project)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				project, err := c.CreateProject(ctx, domain.CreateProjectData{
					Name:        name,
					Description: optionalString(description),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(project)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var id int64
	var name, description string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project (only flags given are sent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				var data domain.UpdateProjectData
				if cmd.Flags().Changed("name") {
					data.Name = &name
				}
				if cmd.Flags().Changed("description") {
					data.Description = &description
				}
				project, err := c.UpdateProject(ctx, id, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(project)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withClient(func(ctx context.Context, c *api.Client) error {
				return c.DeleteProject(ctx, id)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	return cmd
}

// --- watch ---

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live task mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(sess *session.Store) error {
				token := sess.Token()
				if token == "" {
					return fmt.Errorf("not logged in")
				}
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()

				channel := push.NewChannel(cfg.Push.URL)
				channel.OnDown = func() {
					fmt.Fprintln(os.Stderr, "push channel down, giving up")
					stop()
				}
				channel.OnConnect = func() {
					channel.Subscribe(push.TaskTopic, func(event domain.TaskEvent) {
						switch event.Action {
						case domain.ActionDelete:
							fmt.Printf("%s task %d\n", event.Action, event.TaskID)
						default:
							if event.Task != nil {
								fmt.Printf("%s task %d: %s [%s]\n", event.Action, event.Task.ID, event.Task.Title, event.Task.Status)
							}
						}
					})
				}
				if err := channel.Connect(ctx, token); err != nil {
					fmt.Fprintln(os.Stderr, "connect failed, retrying in background:", err)
				}
				defer channel.Disconnect()
				fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", push.TaskTopic)
				<-ctx.Done()
				return nil
			})
		},
	}
}

// --- dev server ---

func devCmd() *cobra.Command {
	dev := &cobra.Command{Use: "dev", Short: "Development backend"}
	dev.AddCommand(devServeCmd())
	return dev
}

func devServeCmd() *cobra.Command {
	var addr, basePath, secret string
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a local TaskFlow backend (in-memory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("TASKFLOW_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--jwt-secret or TASKFLOW_JWT_SECRET required for bearer auth")
			}
			st := devserver.NewStore()
			if seed {
				st.Seed()
			}
			hub := devserver.NewHub(secret, nil)
			handler, err := devserver.New(devserver.Config{
				Store:     st,
				Hub:       hub,
				BasePath:  basePath,
				JWTSecret: secret,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving TaskFlow API on http://%s%s (websocket at /ws)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "JWT signing secret")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed demo data (user alice/secret)")
	return cmd
}

// --- helpers ---

type clientEnv struct {
	Session *session.Store
	Client  *api.Client
	Auth    *store.AuthStore
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if u := viper.GetString("api-url"); u != "" {
		cfg.API.URL = u
	}
	if u := viper.GetString("ws-url"); u != "" {
		cfg.Push.URL = u
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stderrSink() notify.Sink {
	return notify.Func(func(n notify.Notification) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	})
}

func withSession(fn func(*session.Store) error) error {
	sess, err := session.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func withClient(fn func(context.Context, *api.Client) error) error {
	return withSession(func(sess *session.Store) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := api.New(cfg.API.URL, sess, stderrSink())
		client.OnUnauthorized = func() {
			fmt.Fprintln(os.Stderr, "session expired, please login again")
		}
		return fn(context.Background(), client)
	})
}

func withStores(ctx context.Context, fn func(context.Context, *clientEnv) error) error {
	return withSession(func(sess *session.Store) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sink := stderrSink()
		client := api.New(cfg.API.URL, sess, sink)
		channel := push.NewChannel(cfg.Push.URL)
		auth := store.NewAuthStore(client, sess, channel, sink)
		defer channel.Disconnect()
		return fn(ctx, &clientEnv{Session: sess, Client: client, Auth: auth})
	})
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
