package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"taskflow/internal/api"
	"taskflow/internal/domain"
	"taskflow/internal/notify"
	"taskflow/internal/push"
	"taskflow/internal/session"
)

// AuthStore holds the session entity and owns the push channel lifecycle:
// a successful login attempts the live-update connection with the new token,
// and logout always disconnects so no authenticated stream survives it.
type AuthStore struct {
	mu      sync.Mutex
	client  *api.Client
	session *session.Store
	channel *push.Channel
	notify  notify.Sink

	user          *domain.User
	token         string
	authenticated bool
	loading       bool
}

type AuthSnapshot struct {
	User          *domain.User
	Token         string
	Authenticated bool
	Loading       bool
}

// NewAuthStore creates the store and rehydrates any persisted session. The
// channel may be nil for surfaces that don't use live updates.
func NewAuthStore(client *api.Client, sess *session.Store, channel *push.Channel, sink notify.Sink) *AuthStore {
	if sink == nil {
		sink = notify.Discard
	}
	s := &AuthStore{client: client, session: sess, channel: channel, notify: sink}
	s.resume()
	return s
}

// resume restores the in-memory session from durable storage, if present.
func (s *AuthStore) resume() {
	token := s.session.Token()
	if token == "" {
		return
	}
	user, err := s.session.LoadUser()
	if err != nil {
		return
	}
	s.user = &user
	s.token = token
	s.authenticated = true
}

func (s *AuthStore) Snapshot() AuthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := AuthSnapshot{
		Token:         s.token,
		Authenticated: s.authenticated,
		Loading:       s.loading,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Login authenticates, persists the session, and attempts the push-channel
// connection with the new token. A failed connection attempt does not fail
// the login; the channel retries on its own.
func (s *AuthStore) Login(ctx context.Context, creds domain.LoginCredentials) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	resp, err := s.client.Login(ctx, creds)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return err
	}

	user := domain.User{
		ID:        resp.UserID,
		Username:  resp.Username,
		Email:     resp.Email,
		Role:      resp.Role,
		Enabled:   true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.session.SaveSession(resp.Token, user); err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.user = &user
	s.token = resp.Token
	s.authenticated = true
	s.loading = false
	s.mu.Unlock()

	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Login successful!"})

	if s.channel != nil {
		if err := s.channel.Connect(ctx, resp.Token); err != nil {
			slog.Warn("live updates unavailable after login", "error", err)
		}
	}
	return nil
}

// Register creates an account; it does not authenticate the new user.
func (s *AuthStore) Register(ctx context.Context, data domain.RegisterData) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	_, err := s.client.Register(ctx, data)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Registration successful! Please login."})
	return nil
}

// Logout clears durable and in-memory session state and disconnects the
// push channel.
func (s *AuthStore) Logout() {
	_ = s.session.Clear()

	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.authenticated = false
	s.loading = false
	s.mu.Unlock()

	if s.channel != nil {
		s.channel.Disconnect()
	}
	s.notify.Notify(notify.Notification{Level: notify.Success, Message: "Logged out successfully"})
}

// UpdateUser merges a partial projection into the in-memory user. It does
// not touch durable storage or the server.
func (s *AuthStore) UpdateUser(patch func(*domain.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}
	patch(s.user)
}
