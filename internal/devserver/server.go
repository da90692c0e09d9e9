// Package devserver implements the TaskFlow REST and websocket contract for
// local development and the test suites. It is not a production backend: data
// lives in memory and passwords are stored as given.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskflow/internal/domain"
)

// Config for the development server handler.
type Config struct {
	Store     *Store
	Hub       *Hub
	BasePath  string
	JWTSecret string
}

type ErrorBody struct {
	Timestamp        string            `json:"timestamp"`
	Status           int               `json:"status"`
	Kind             string            `json:"error"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// apiError models the error payload the client expects.
type apiError struct {
	ErrorBody
	status int
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string, validationErrors map[string]string) huma.StatusError {
	return &apiError{
		status: status,
		ErrorBody: ErrorBody{
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			Status:           status,
			Kind:             http.StatusText(status),
			Message:          message,
			ValidationErrors: validationErrors,
		},
	}
}

// New returns an HTTP handler exposing the TaskFlow API plus the websocket
// endpoint at /ws.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}

	// Override Huma errors to use the client's envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.JWTSecret))
	hcfg := huma.DefaultConfig("TaskFlow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Store, cfg.JWTSecret)
	registerTasks(group, cfg.Store, cfg.Hub)
	registerProjects(group, cfg.Store)

	if cfg.Hub != nil {
		router.Handle("/ws", cfg.Hub)
	}
	return router, nil
}

// handleError maps store failures onto the error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "Validation failed", ve.Fields)
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newAPIError(http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrConflict):
		return newAPIError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrBadCredentials):
		return newAPIError(http.StatusUnauthorized, err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, err.Error(), nil)
	}
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	p, ok := principalFromContext(ctx)
	if !ok {
		return Principal{}, newAPIError(http.StatusUnauthorized, "authentication required", nil)
	}
	return p, nil
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

func registerAuth(api huma.API, st *Store, secret string) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Authenticate and issue a bearer token",
	}, func(ctx context.Context, input *struct {
		Body domain.LoginCredentials `json:"body"`
	}) (*struct {
		Body domain.LoginResponse `json:"body"`
	}, error) {
		user, err := st.Authenticate(input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(secret, user, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LoginResponse `json:"body"`
		}{Body: domain.LoginResponse{
			Token:    token,
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := st.GetUser(principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body domain.RegisterData `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		user, err := st.Register(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})
}

func registerTasks(api huma.API, st *Store, hub *Hub) {
	publish := func(event domain.TaskEvent) {
		if hub != nil {
			hub.BroadcastTask(event)
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Page       int    `query:"page" minimum:"0" default:"0"`
		Size       int    `query:"size" minimum:"1" maximum:"100" default:"20"`
		Status     string `query:"status"`
		Priority   string `query:"priority"`
		AssigneeID int64  `query:"assigneeId"`
		ProjectID  int64  `query:"projectId"`
		Search     string `query:"search"`
	}) (*struct {
		Body domain.TasksPage `json:"body"`
	}, error) {
		filters := domain.TaskFilters{
			Status:   domain.TaskStatus(input.Status),
			Priority: domain.TaskPriority(input.Priority),
			Search:   input.Search,
		}
		if input.AssigneeID != 0 {
			filters.AssigneeID = &input.AssigneeID
		}
		if input.ProjectID != 0 {
			filters.ProjectID = &input.ProjectID
		}
		page := st.ListTasks(filters, input.Page, input.Size)
		return &struct {
			Body domain.TasksPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		task, err := st.GetTask(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body domain.CreateTaskData `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := st.CreateTask(principal.UserID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		publish(domain.TaskEvent{Action: domain.ActionCreate, Task: &task})
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body domain.UpdateTaskData `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		task, err := st.UpdateTask(input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		publish(domain.TaskEvent{Action: domain.ActionUpdate, Task: &task})
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Update task status only",
	}, func(ctx context.Context, input *struct {
		ID     int64  `path:"id"`
		Status string `query:"status" enum:"TODO,IN_PROGRESS,DONE,BLOCKED" required:"true"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		task, err := st.UpdateTaskStatus(input.ID, domain.TaskStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		publish(domain.TaskEvent{Action: domain.ActionUpdate, Task: &task})
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := st.DeleteTask(input.ID); err != nil {
			return nil, handleError(err)
		}
		publish(domain.TaskEvent{Action: domain.ActionDelete, TaskID: input.ID})
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, st *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: st.ListProjects()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		project, err := st.GetProject(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body domain.CreateProjectData `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		project, err := st.CreateProject(principal.UserID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Update project",
	}, func(ctx context.Context, input *struct {
		ID   int64                    `path:"id"`
		Body domain.UpdateProjectData `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		project, err := st.UpdateProject(input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := st.DeleteProject(input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
