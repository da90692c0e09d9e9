// Package store holds the canonical client-side copies of server entities:
// one state container per entity kind, mutated only through its declared
// actions. REST responses and push-channel events both reconcile into the
// same collections; the last response to arrive wins.
package store

import (
	"context"
	"sync"
	"time"

	"taskflow/internal/api"
	"taskflow/internal/domain"
	"taskflow/internal/notify"
)

const defaultPageSize = 20

// TaskStore holds the task collection plus derived UI state: selection,
// filters, the pagination window of the last completed fetch, and
// loading/error flags.
type TaskStore struct {
	mu     sync.Mutex
	client *api.Client
	notify notify.Sink

	tasks      []domain.Task
	selected   *domain.Task
	filters    domain.TaskFilters
	pagination domain.Pagination
	loading    bool
	err        string

	searchDelay time.Duration
	searchTimer *time.Timer
}

// TaskSnapshot is a consistent copy of the store state for rendering.
type TaskSnapshot struct {
	Tasks      []domain.Task
	Selected   *domain.Task
	Filters    domain.TaskFilters
	Pagination domain.Pagination
	Loading    bool
	Err        string
}

// NewTaskStore creates an empty store. The notification sink receives only
// success and real-time messages; error notifications come from the API
// client alone.
func NewTaskStore(client *api.Client, sink notify.Sink) *TaskStore {
	if sink == nil {
		sink = notify.Discard
	}
	return &TaskStore{
		client:      client,
		notify:      sink,
		pagination:  domain.Pagination{Size: defaultPageSize},
		searchDelay: 300 * time.Millisecond,
	}
}

// Snapshot returns a copy of the current state.
func (s *TaskStore) Snapshot() TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := TaskSnapshot{
		Tasks:      append([]domain.Task(nil), s.tasks...),
		Filters:    s.filters,
		Pagination: s.pagination,
		Loading:    s.loading,
		Err:        s.err,
	}
	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	return snap
}

// FetchTasks loads one page with the current filters, replacing the whole
// collection and pagination snapshot on success. On failure the error is
// recorded and the previous collection is left visible; fetch failures are
// not propagated to the caller.
func (s *TaskStore) FetchTasks(ctx context.Context, page int) {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	filters := s.filters
	size := s.pagination.Size
	s.mu.Unlock()

	resp, err := s.client.ListTasks(ctx, filters, api.PageRequest{Page: &page, Size: &size})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = err.Error()
		return
	}
	s.tasks = resp.Content
	s.pagination = domain.Pagination{
		CurrentPage:   resp.Number,
		TotalPages:    resp.TotalPages,
		TotalElements: resp.TotalElements,
		Size:          resp.Size,
	}
}

// CreateTask creates a task and prepends the server's copy (newest first).
// Failures are recorded and returned so a form can keep its own state.
func (s *TaskStore) CreateTask(ctx context.Context, data domain.CreateTaskData) error {
	task, err := s.client.CreateTask(ctx, data)
	if err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	s.tasks = append([]domain.Task{task}, s.tasks...)
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Task created successfully!"})
	return nil
}

// UpdateTask replaces the stored copy with the server's response, in the
// collection and in the selection if it matches.
func (s *TaskStore) UpdateTask(ctx context.Context, id int64, data domain.UpdateTaskData) error {
	task, err := s.client.UpdateTask(ctx, id, data)
	if err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	s.replaceLocked(task)
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Task updated successfully!"})
	return nil
}

// UpdateTaskStatus is the narrow single-field update.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus) error {
	task, err := s.client.UpdateTaskStatus(ctx, id, status)
	if err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	s.replaceLocked(task)
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Task status updated!"})
	return nil
}

// DeleteTask removes the task only after server confirmation; there is no
// optimistic removal to roll back.
func (s *TaskStore) DeleteTask(ctx context.Context, id int64) error {
	if err := s.client.DeleteTask(ctx, id); err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Task deleted successfully!"})
	return nil
}

// SetSelectedTask sets or clears the selection.
func (s *TaskStore) SetSelectedTask(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task == nil {
		s.selected = nil
		return
	}
	sel := *task
	s.selected = &sel
}

// SetFilters merges the patch into the current filters and unconditionally
// refetches from page 0, invalidating the previous pagination window.
func (s *TaskStore) SetFilters(ctx context.Context, patch domain.TaskFilterPatch) {
	s.mu.Lock()
	patch.Apply(&s.filters)
	s.mu.Unlock()
	s.FetchTasks(ctx, 0)
}

// SetSearch updates the free-text filter after a quiet period, so every
// keystroke doesn't turn into a request.
func (s *TaskStore) SetSearch(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchTimer != nil {
		s.searchTimer.Stop()
	}
	s.searchTimer = time.AfterFunc(s.searchDelay, func() {
		s.SetFilters(context.Background(), domain.TaskFilterPatch{Search: &query})
	})
}

// HandleTaskUpdate is invoked only by the push channel: replace the task in
// place if present, insert it otherwise. Never calls the REST layer.
func (s *TaskStore) HandleTaskUpdate(task domain.Task) {
	s.mu.Lock()
	if !s.replaceLocked(task) {
		s.tasks = append([]domain.Task{task}, s.tasks...)
	}
	s.mu.Unlock()
	s.notify.Notify(notify.Notification{Level: notify.Realtime, Message: "Task updated in real-time"})
}

// HandleTaskDelete is invoked only by the push channel: remove by id, a
// no-op when the id is not present.
func (s *TaskStore) HandleTaskDelete(id int64) {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if removed {
		s.notify.Notify(notify.Notification{Level: notify.Realtime, Message: "Task deleted"})
	}
}

// replaceLocked swaps the stored copy for the given task by id, returning
// whether a copy was present. Caller holds the lock.
func (s *TaskStore) replaceLocked(task domain.Task) bool {
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			found = true
		}
	}
	if s.selected != nil && s.selected.ID == task.ID {
		sel := task
		s.selected = &sel
	}
	return found
}

// removeLocked deletes by id, clearing the selection if it matched. Caller
// holds the lock.
func (s *TaskStore) removeLocked(id int64) bool {
	kept := s.tasks[:0]
	removed := false
	for _, t := range s.tasks {
		if t.ID == id {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
	}
	return removed
}

func (s *TaskStore) recordErr(err error) {
	s.mu.Lock()
	s.err = err.Error()
	s.mu.Unlock()
}
