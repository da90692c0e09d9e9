package store

import (
	"context"
	"sync"

	"taskflow/internal/api"
	"taskflow/internal/domain"
	"taskflow/internal/notify"
)

// ProjectStore holds the project collection plus selection and
// loading/error flags.
type ProjectStore struct {
	mu     sync.Mutex
	client *api.Client
	notify notify.Sink

	projects []domain.Project
	selected *domain.Project
	loading  bool
	err      string
}

type ProjectSnapshot struct {
	Projects []domain.Project
	Selected *domain.Project
	Loading  bool
	Err      string
}

func NewProjectStore(client *api.Client, sink notify.Sink) *ProjectStore {
	if sink == nil {
		sink = notify.Discard
	}
	return &ProjectStore{client: client, notify: sink}
}

func (s *ProjectStore) Snapshot() ProjectSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := ProjectSnapshot{
		Projects: append([]domain.Project(nil), s.projects...),
		Loading:  s.loading,
		Err:      s.err,
	}
	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	return snap
}

// FetchProjects replaces the whole collection on success. On failure the
// error is recorded and the previous collection stays visible.
func (s *ProjectStore) FetchProjects(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	projects, err := s.client.ListProjects(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = err.Error()
		return
	}
	s.projects = projects
}

// CreateProject appends the server's copy on success.
func (s *ProjectStore) CreateProject(ctx context.Context, data domain.CreateProjectData) error {
	project, err := s.client.CreateProject(ctx, data)
	if err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	s.projects = append(s.projects, project)
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Project created successfully!"})
	return nil
}

// UpdateProject replaces the stored copy with the server's response, in the
// collection and in the selection if it matches.
func (s *ProjectStore) UpdateProject(ctx context.Context, id int64, data domain.UpdateProjectData) error {
	project, err := s.client.UpdateProject(ctx, id, data)
	if err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.projects[i] = project
		}
	}
	if s.selected != nil && s.selected.ID == id {
		sel := project
		s.selected = &sel
	}
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Project updated successfully!"})
	return nil
}

// DeleteProject removes the project only after server confirmation.
func (s *ProjectStore) DeleteProject(ctx context.Context, id int64) error {
	if err := s.client.DeleteProject(ctx, id); err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	kept := s.projects[:0]
	for _, p := range s.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.projects = kept
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
	}
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Project deleted successfully!"})
	return nil
}

func (s *ProjectStore) SetSelectedProject(project *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project == nil {
		s.selected = nil
		return
	}
	sel := *project
	s.selected = &sel
}

func (s *ProjectStore) recordErr(err error) {
	s.mu.Lock()
	s.err = err.Error()
	s.mu.Unlock()
}
