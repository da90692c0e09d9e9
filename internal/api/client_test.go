package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"taskflow/internal/domain"
	"taskflow/internal/notify"
	"taskflow/internal/session"
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (r *recordingSink) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingSink) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notifications...)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.Store, *recordingSink) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sess, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	sink := &recordingSink{}
	return New(srv.URL, sess, sink), sess, sink
}

func TestBearerTokenInjection(t *testing.T) {
	var gotAuth string
	client, sess, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(domain.TasksPage{})
	}))

	if _, err := client.ListTasks(context.Background(), domain.TaskFilters{}, PageRequest{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header when signed out, got %q", gotAuth)
	}

	if err := sess.SaveSession("tok-123", domain.User{ID: 1, Username: "alice"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if _, err := client.ListTasks(context.Background(), domain.TaskFilters{}, PageRequest{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestListTasksOmitsUnsetFilters(t *testing.T) {
	var gotQuery map[string][]string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(domain.TasksPage{})
	}))

	if _, err := client.ListTasks(context.Background(), domain.TaskFilters{}, PageRequest{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(gotQuery) != 0 {
		t.Fatalf("expected empty query, got %v", gotQuery)
	}

	page, size := 2, 10
	projectID := int64(7)
	filters := domain.TaskFilters{Status: domain.StatusTodo, ProjectID: &projectID, Search: "db"}
	if _, err := client.ListTasks(context.Background(), filters, PageRequest{Page: &page, Size: &size}); err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for k := range gotQuery {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"page", "projectId", "search", "size", "status"}
	if len(keys) != len(want) {
		t.Fatalf("query keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("query keys = %v, want %v", keys, want)
		}
	}
	if gotQuery["status"][0] != "TODO" || gotQuery["projectId"][0] != "7" || gotQuery["page"][0] != "2" {
		t.Fatalf("unexpected query values: %v", gotQuery)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	client, sess, sink := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	if err := sess.SaveSession("stale", domain.User{ID: 1}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	var redirected bool
	client.OnUnauthorized = func() { redirected = true }

	_, err := client.GetTask(context.Background(), 1)
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected typed 401, got %v", err)
	}
	if !redirected {
		t.Fatal("expected OnUnauthorized to run")
	}
	if sess.Token() != "" {
		t.Fatal("expected session token to be cleared")
	}
	if _, err := sess.LoadUser(); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected user data cleared, got %v", err)
	}
	// 401s redirect, they don't toast.
	if n := sink.all(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestValidationErrorsNotifyPerField(t *testing.T) {
	client, _, sink := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(Error{
			Status:  http.StatusUnprocessableEntity,
			Kind:    "Unprocessable Entity",
			Message: "Validation failed",
			ValidationErrors: map[string]string{
				"title":     "Title is required",
				"projectId": "Project is required",
			},
		})
	}))

	_, err := client.CreateTask(context.Background(), domain.CreateTaskData{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(apiErr.ValidationErrors) != 2 {
		t.Fatalf("expected field errors preserved, got %+v", apiErr)
	}
	notifications := sink.all()
	if len(notifications) != 2 {
		t.Fatalf("expected one notification per field, got %v", notifications)
	}
	for _, n := range notifications {
		if n.Level != notify.Error {
			t.Fatalf("expected error level, got %v", n)
		}
	}
}

func TestPlainErrorNotifiesMessage(t *testing.T) {
	client, _, sink := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(Error{
			Status:  http.StatusConflict,
			Kind:    "Conflict",
			Message: "username \"bob\" already exists",
		})
	}))

	_, err := client.Register(context.Background(), domain.RegisterData{Username: "bob"})
	if err == nil {
		t.Fatal("expected an error")
	}
	notifications := sink.all()
	if len(notifications) != 1 || notifications[0].Message != "username \"bob\" already exists" {
		t.Fatalf("unexpected notifications: %v", notifications)
	}
}

func TestConcurrentCallsShareOneClient(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.TasksPage{})
	}))
	if client.HTTPClient == nil {
		t.Fatal("New must wire the transport up front")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.ListTasks(context.Background(), domain.TaskFilters{}, PageRequest{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent list: %v", err)
	}
}

func TestZeroValueClientIsUsableConcurrently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Task{ID: 1})
	}))
	defer srv.Close()

	// A literal without a transport falls back per call, without writing the
	// shared struct.
	client := &Client{BaseURL: srv.URL, Notify: notify.Discard}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.GetTask(context.Background(), 1); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if client.HTTPClient != nil {
		t.Fatal("do must not write Client fields")
	}
}

func TestValidationErrorsSurviveEmptyMessage(t *testing.T) {
	client, _, sink := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(Error{
			Status:           http.StatusUnprocessableEntity,
			Kind:             "Unprocessable Entity",
			ValidationErrors: map[string]string{"title": "Title is required"},
		})
	}))

	_, err := client.CreateTask(context.Background(), domain.CreateTaskData{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.ValidationErrors["title"] != "Title is required" {
		t.Fatalf("field errors must survive an empty message, got %+v", apiErr)
	}
	notifications := sink.all()
	if len(notifications) != 1 || notifications[0].Message != "Title is required" {
		t.Fatalf("unexpected notifications: %v", notifications)
	}
}

func TestMalformedErrorBodyFallsBack(t *testing.T) {
	client, _, sink := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))

	_, err := client.GetProject(context.Background(), 1)
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "An unexpected error occurred" {
		t.Fatalf("expected generic fallback, got %+v", apiErr)
	}
	notifications := sink.all()
	if len(notifications) != 1 || notifications[0].Message != "An unexpected error occurred" {
		t.Fatalf("unexpected notifications: %v", notifications)
	}
}

func TestDeleteSendsNoBodyAndAcceptsNoContent(t *testing.T) {
	var gotMethod, gotPath string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteTask(context.Background(), 42); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/tasks/42" {
		t.Fatalf("got %s %s", gotMethod, gotPath)
	}
}
