// Package session persists client-side auth state (the bearer token and the
// signed-in user projection) across process restarts.
package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"taskflow/internal/domain"
)

const defaultDBName = "taskflow.db"

// Fixed storage keys. Both are cleared together on logout or on any 401.
const (
	KeyAuthToken = "auth_token"
	KeyUserData  = "user_data"
)

var ErrNotFound = errors.New("session: key not found")

// Store is a durable key/value store backed by SQLite in the workspace
// directory.
type Store struct {
	DB *sql.DB
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".taskflow", defaultDBName)
}

// EnsureWorkspace creates the workspace state directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".taskflow")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens (creating if needed) the session store for a workspace.
func Open(workspace string) (*Store, error) {
	if _, err := EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.DB.Exec(`CREATE TABLE IF NOT EXISTS client_state(
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create client_state: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Get returns the value for key or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.DB.QueryRow(`SELECT value FROM client_state WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.DB.Exec(`INSERT INTO client_state(key,value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// Delete removes key; missing keys are not an error.
func (s *Store) Delete(key string) error {
	_, err := s.DB.Exec(`DELETE FROM client_state WHERE key=?`, key)
	return err
}

// Token returns the persisted bearer token, or "" when signed out.
func (s *Store) Token() string {
	token, err := s.Get(KeyAuthToken)
	if err != nil {
		return ""
	}
	return token
}

// SaveSession persists the token and user projection together.
func (s *Store) SaveSession(token string, user domain.User) error {
	if err := s.Set(KeyAuthToken, token); err != nil {
		return err
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.Set(KeyUserData, string(data))
}

// LoadUser returns the persisted user projection, or ErrNotFound.
func (s *Store) LoadUser() (domain.User, error) {
	raw, err := s.Get(KeyUserData)
	if err != nil {
		return domain.User{}, err
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return domain.User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	return user, nil
}

// Clear removes all persisted auth state. Called on logout and on any 401.
func (s *Store) Clear() error {
	if err := s.Delete(KeyAuthToken); err != nil {
		return err
	}
	return s.Delete(KeyUserData)
}
