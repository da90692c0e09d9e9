package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"taskflow/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrBadCredentials = errors.New("invalid username or password")
)

// ValidationError carries per-field messages for a 422 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

type userRecord struct {
	user     domain.User
	password string
}

// Store is the in-memory backing state for the development server. It owns
// id assignment and the denormalized display names on tasks and projects.
type Store struct {
	mu          sync.Mutex
	users       map[int64]*userRecord
	projects    map[int64]*domain.Project
	tasks       map[int64]*domain.Task
	categories  map[int64]string
	nextUser    int64
	nextProject int64
	nextTask    int64
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    map[int64]*userRecord{},
		projects: map[int64]*domain.Project{},
		tasks:    map[int64]*domain.Task{},
		categories: map[int64]string{
			1: "Feature",
			2: "Bug",
			3: "Maintenance",
		},
		now: time.Now,
	}
}

// Seed creates the demo account and project used by `tf dev serve`.
func (s *Store) Seed() {
	user, err := s.Register(domain.RegisterData{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret",
	})
	if err != nil {
		return
	}
	_, _ = s.CreateProject(user.ID, domain.CreateProjectData{Name: "Demo"})
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Register creates a user. Username and email must be unique.
func (s *Store) Register(data domain.RegisterData) (domain.User, error) {
	fields := map[string]string{}
	if strings.TrimSpace(data.Username) == "" {
		fields["username"] = "Username is required"
	}
	if strings.TrimSpace(data.Email) == "" {
		fields["email"] = "Email is required"
	}
	if strings.TrimSpace(data.Password) == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		return domain.User{}, &ValidationError{Fields: fields}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if rec.user.Username == data.Username {
			return domain.User{}, fmt.Errorf("username %q: %w", data.Username, ErrConflict)
		}
	}
	s.nextUser++
	user := domain.User{
		ID:        s.nextUser,
		Username:  data.Username,
		Email:     data.Email,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Role:      "USER",
		Enabled:   true,
		CreatedAt: s.timestamp(),
	}
	s.users[user.ID] = &userRecord{user: user, password: data.Password}
	return user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *Store) Authenticate(username, password string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if rec.user.Username == username && rec.password == password {
			return rec.user, nil
		}
	}
	return domain.User{}, ErrBadCredentials
}

func (s *Store) GetUser(id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return rec.user, nil
}

func (s *Store) userName(id int64) string {
	rec, ok := s.users[id]
	if !ok {
		return ""
	}
	return rec.user.Username
}

// CreateProject creates a project owned by the given user.
func (s *Store) CreateProject(ownerID int64, data domain.CreateProjectData) (domain.Project, error) {
	if strings.TrimSpace(data.Name) == "" {
		return domain.Project{}, &ValidationError{Fields: map[string]string{"name": "Name is required"}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerID]; !ok {
		return domain.Project{}, fmt.Errorf("user %d: %w", ownerID, ErrNotFound)
	}
	s.nextProject++
	now := s.timestamp()
	project := domain.Project{
		ID:          s.nextProject,
		Name:        data.Name,
		Description: data.Description,
		OwnerID:     ownerID,
		OwnerName:   s.userName(ownerID),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[project.ID] = &project
	return project, nil
}

func (s *Store) ListProjects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetProject(id int64) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return *p, nil
}

func (s *Store) UpdateProject(id int64, data domain.UpdateProjectData) (domain.Project, error) {
	if data.Name != nil && strings.TrimSpace(*data.Name) == "" {
		return domain.Project{}, &ValidationError{Fields: map[string]string{"name": "Name is required"}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if data.Name != nil {
		p.Name = *data.Name
		for _, t := range s.tasks {
			if t.ProjectID == id {
				t.ProjectName = p.Name
			}
		}
	}
	if data.Description != nil {
		p.Description = data.Description
	}
	p.UpdatedAt = s.timestamp()
	return *p, nil
}

func (s *Store) DeleteProject(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	delete(s.projects, id)
	for taskID, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, taskID)
		}
	}
	return nil
}

// CreateTask creates a task reported by the given user, filling in the
// denormalized display names.
func (s *Store) CreateTask(reporterID int64, data domain.CreateTaskData) (domain.Task, error) {
	fields := map[string]string{}
	if strings.TrimSpace(data.Title) == "" {
		fields["title"] = "Title is required"
	}
	if data.ProjectID == 0 {
		fields["projectId"] = "Project is required"
	}
	if len(fields) > 0 {
		return domain.Task{}, &ValidationError{Fields: fields}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[data.ProjectID]
	if !ok {
		return domain.Task{}, fmt.Errorf("project %d: %w", data.ProjectID, ErrNotFound)
	}
	status := data.Status
	if status == "" {
		status = domain.StatusTodo
	}
	priority := data.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	s.nextTask++
	now := s.timestamp()
	task := domain.Task{
		ID:             s.nextTask,
		Title:          data.Title,
		Description:    data.Description,
		Status:         status,
		Priority:       priority,
		ProjectID:      project.ID,
		ProjectName:    project.Name,
		AssigneeID:     data.AssigneeID,
		ReporterID:     reporterID,
		ReporterName:   s.userName(reporterID),
		CategoryID:     data.CategoryID,
		DueDate:        data.DueDate,
		EstimatedHours: data.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if task.AssigneeID != nil {
		name := s.userName(*task.AssigneeID)
		task.AssigneeName = &name
	}
	if task.CategoryID != nil {
		if name, ok := s.categories[*task.CategoryID]; ok {
			task.CategoryName = &name
		}
	}
	if task.Status == domain.StatusDone {
		task.CompletedAt = &now
	}
	s.tasks[task.ID] = &task
	return task, nil
}

func (s *Store) GetTask(id int64) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return *t, nil
}

func (s *Store) UpdateTask(id int64, data domain.UpdateTaskData) (domain.Task, error) {
	if data.Title != nil && strings.TrimSpace(*data.Title) == "" {
		return domain.Task{}, &ValidationError{Fields: map[string]string{"title": "Title is required"}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if data.Title != nil {
		t.Title = *data.Title
	}
	if data.Description != nil {
		t.Description = data.Description
	}
	if data.Status != nil {
		s.setStatusLocked(t, *data.Status)
	}
	if data.Priority != nil {
		t.Priority = *data.Priority
	}
	if data.AssigneeID != nil {
		t.AssigneeID = data.AssigneeID
		name := s.userName(*data.AssigneeID)
		t.AssigneeName = &name
	}
	if data.DueDate != nil {
		t.DueDate = data.DueDate
	}
	if data.EstimatedHours != nil {
		t.EstimatedHours = data.EstimatedHours
	}
	if data.ActualHours != nil {
		t.ActualHours = data.ActualHours
	}
	t.UpdatedAt = s.timestamp()
	return *t, nil
}

// UpdateTaskStatus is the narrow single-field update.
func (s *Store) UpdateTaskStatus(id int64, status domain.TaskStatus) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	s.setStatusLocked(t, status)
	t.UpdatedAt = s.timestamp()
	return *t, nil
}

func (s *Store) setStatusLocked(t *domain.Task, status domain.TaskStatus) {
	t.Status = status
	if status == domain.StatusDone {
		now := s.timestamp()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
}

func (s *Store) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

// ListTasks applies the filters with AND semantics, orders newest first, and
// returns the requested page window.
func (s *Store) ListTasks(filters domain.TaskFilters, page, size int) domain.TasksPage {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	s.mu.Lock()
	matched := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matches(*t, filters) {
			matched = append(matched, *t)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	totalPages := int((total + int64(size) - 1) / int64(size))
	start := page * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return domain.TasksPage{
		Content:       matched[start:end],
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}
}

func matches(t domain.Task, f domain.TaskFilters) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			(t.Description == nil || !strings.Contains(strings.ToLower(*t.Description), needle)) {
			return false
		}
	}
	return true
}
