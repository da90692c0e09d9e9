package api

import (
	"context"
	"net/http"

	"taskflow/internal/domain"
)

// Login exchanges credentials for a bearer token and user identity.
func (c *Client) Login(ctx context.Context, creds domain.LoginCredentials) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, http.MethodPost, "auth/login", creds, &resp)
	return resp, err
}

// Register creates an account. It does not authenticate the new user.
func (c *Client) Register(ctx context.Context, data domain.RegisterData) (domain.User, error) {
	var resp domain.User
	err := c.do(ctx, http.MethodPost, "auth/register", data, &resp)
	return resp, err
}
