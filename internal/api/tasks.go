package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"taskflow/internal/domain"
)

// PageRequest selects a page window. Nil fields are omitted from the query
// and left to server defaults.
type PageRequest struct {
	Page *int
	Size *int
}

// ListTasks fetches one page of tasks. Only filters that are actually set are
// serialized as query parameters; absent fields are never sent.
func (c *Client) ListTasks(ctx context.Context, filters domain.TaskFilters, page PageRequest) (domain.TasksPage, error) {
	params := url.Values{}
	if page.Page != nil {
		params.Set("page", strconv.Itoa(*page.Page))
	}
	if page.Size != nil {
		params.Set("size", strconv.Itoa(*page.Size))
	}
	if filters.Status != "" {
		params.Set("status", string(filters.Status))
	}
	if filters.Priority != "" {
		params.Set("priority", string(filters.Priority))
	}
	if filters.AssigneeID != nil {
		params.Set("assigneeId", strconv.FormatInt(*filters.AssigneeID, 10))
	}
	if filters.ProjectID != nil {
		params.Set("projectId", strconv.FormatInt(*filters.ProjectID, 10))
	}
	if filters.Search != "" {
		params.Set("search", filters.Search)
	}
	endpoint := "tasks"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp domain.TasksPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp)
	return resp, err
}

// CreateTask creates a task and returns the server's authoritative copy.
func (c *Client) CreateTask(ctx context.Context, data domain.CreateTaskData) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPost, "tasks", data, &resp)
	return resp, err
}

// UpdateTask replaces the task's mutable fields.
func (c *Client) UpdateTask(ctx context.Context, id int64, data domain.UpdateTaskData) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%d", id), data, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", id), nil, nil)
}

// UpdateTaskStatus is the narrow single-field update.
func (c *Client) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus) (domain.Task, error) {
	endpoint := fmt.Sprintf("tasks/%d/status?status=%s", id, url.QueryEscape(string(status)))
	var resp domain.Task
	err := c.do(ctx, http.MethodPatch, endpoint, nil, &resp)
	return resp, err
}
