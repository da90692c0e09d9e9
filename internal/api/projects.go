package api

import (
	"context"
	"fmt"
	"net/http"

	"taskflow/internal/domain"
)

// ListProjects fetches all projects visible to the current user.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var resp []domain.Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%d", id), nil, &resp)
	return resp, err
}

// CreateProject creates a project and returns the server's copy.
func (c *Client) CreateProject(ctx context.Context, data domain.CreateProjectData) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodPost, "projects", data, &resp)
	return resp, err
}

// UpdateProject replaces the project's mutable fields.
func (c *Client) UpdateProject(ctx context.Context, id int64, data domain.UpdateProjectData) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("projects/%d", id), data, &resp)
	return resp, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("projects/%d", id), nil, nil)
}
