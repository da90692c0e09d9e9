package store

import (
	"context"
	"errors"
	"testing"

	"taskflow/internal/domain"
	"taskflow/internal/notify"
	"taskflow/internal/push"
	"taskflow/internal/session"
)

func TestLoginPersistsSessionAndConnectsChannel(t *testing.T) {
	env := newStoreEnv(t)
	if err := env.Sess.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	channel := push.NewChannel(env.WSURL)
	defer channel.Disconnect()
	s := NewAuthStore(env.Client, env.Sess, channel, env.Sink)

	if snap := s.Snapshot(); snap.Authenticated {
		t.Fatal("must start signed out")
	}
	if err := s.Login(context.Background(), domain.LoginCredentials{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	snap := s.Snapshot()
	if !snap.Authenticated || snap.Token == "" || snap.User == nil {
		t.Fatalf("unexpected state after login: %+v", snap)
	}
	if snap.User.Username != "alice" || snap.User.Email != "alice@example.com" || !snap.User.Enabled {
		t.Fatalf("unexpected user projection: %+v", snap.User)
	}
	if env.Sess.Token() != snap.Token {
		t.Fatal("token not persisted")
	}
	if user, err := env.Sess.LoadUser(); err != nil || user.Username != "alice" {
		t.Fatalf("user projection not persisted: %v %+v", err, user)
	}
	if !channel.Connected() {
		t.Fatal("login must attempt the live-update connection")
	}
}

func TestLoginFailureLeavesNoSession(t *testing.T) {
	env := newStoreEnv(t)
	if err := env.Sess.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s := NewAuthStore(env.Client, env.Sess, nil, env.Sink)

	err := s.Login(context.Background(), domain.LoginCredentials{Username: "alice", Password: "wrong"})
	if err == nil {
		t.Fatal("expected login failure")
	}
	snap := s.Snapshot()
	if snap.Authenticated || snap.Loading || snap.Token != "" {
		t.Fatalf("unexpected state after failed login: %+v", snap)
	}
	if env.Sess.Token() != "" {
		t.Fatal("no token may be persisted on failure")
	}
}

func TestChannelFailureDoesNotFailLogin(t *testing.T) {
	env := newStoreEnv(t)
	if err := env.Sess.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	channel := push.NewChannel("ws://127.0.0.1:1/ws")
	defer channel.Disconnect()
	s := NewAuthStore(env.Client, env.Sess, channel, env.Sink)

	if err := s.Login(context.Background(), domain.LoginCredentials{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("login must succeed despite channel failure: %v", err)
	}
	if snap := s.Snapshot(); !snap.Authenticated {
		t.Fatalf("unexpected state: %+v", snap)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	env := newStoreEnv(t)
	if err := env.Sess.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	channel := push.NewChannel(env.WSURL)
	s := NewAuthStore(env.Client, env.Sess, channel, env.Sink)
	if err := s.Login(context.Background(), domain.LoginCredentials{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	s.Logout()
	snap := s.Snapshot()
	if snap.Authenticated || snap.Token != "" || snap.User != nil {
		t.Fatalf("unexpected state after logout: %+v", snap)
	}
	if env.Sess.Token() != "" {
		t.Fatal("token must be cleared")
	}
	if _, err := env.Sess.LoadUser(); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("user data must be cleared, got %v", err)
	}
	if channel.Connected() {
		t.Fatal("no live connection may survive logout")
	}
}

func TestResumeFromPersistedSession(t *testing.T) {
	env := newStoreEnv(t)
	// newStoreEnv already saved a session for alice.
	s := NewAuthStore(env.Client, env.Sess, nil, env.Sink)
	snap := s.Snapshot()
	if !snap.Authenticated || snap.User == nil || snap.User.Username != "alice" {
		t.Fatalf("expected rehydrated session, got %+v", snap)
	}
}

func TestRegisterDoesNotAuthenticate(t *testing.T) {
	env := newStoreEnv(t)
	if err := env.Sess.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s := NewAuthStore(env.Client, env.Sess, nil, env.Sink)

	err := s.Register(context.Background(), domain.RegisterData{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "pw",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	snap := s.Snapshot()
	if snap.Authenticated || snap.Token != "" {
		t.Fatalf("register must not sign in, got %+v", snap)
	}
	found := false
	for _, m := range env.Sink.messages(notify.Success) {
		if m == "Registration successful! Please login." {
			found = true
		}
	}
	if !found {
		t.Fatal("expected registration notification")
	}
}

func TestUpdateUserPatchesInMemoryOnly(t *testing.T) {
	env := newStoreEnv(t)
	s := NewAuthStore(env.Client, env.Sess, nil, env.Sink)

	first := "Alice"
	s.UpdateUser(func(u *domain.User) { u.FirstName = &first })
	snap := s.Snapshot()
	if snap.User == nil || snap.User.FirstName == nil || *snap.User.FirstName != "Alice" {
		t.Fatalf("patch not applied: %+v", snap.User)
	}
	// durable copy untouched
	stored, err := env.Sess.LoadUser()
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.FirstName != nil {
		t.Fatalf("durable projection must not change, got %+v", stored)
	}
}
