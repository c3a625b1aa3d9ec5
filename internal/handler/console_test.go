package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
)

type sessionStub map[string]*domain.User

func (s sessionStub) ResolveSession(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUnauthorized
}

type consoleFixture struct {
	handler http.Handler
	auth    *stubAuth
	tasks   *stubTasks
	users   *stubUsers
}

func newConsoleFixture(t *testing.T) *consoleFixture {
	t.Helper()
	root := &domain.User{ID: 1, Username: "root", Role: domain.RoleSuperadmin}
	ada := &domain.User{ID: 2, Username: "ada", Role: domain.RoleAdmin}
	uma := &domain.User{ID: 4, Username: "uma", Role: domain.RoleUser, AdminID: ptr(int64(2))}

	f := &consoleFixture{
		auth: &stubAuth{users: map[string]*domain.User{"root": root, "ada": ada, "uma": uma}},
		tasks: &stubTasks{
			assignees: []*domain.User{uma},
			tasks: []*domain.Task{{
				ID: 10, Title: "Ship it", AssignedTo: 4, Status: domain.TaskCompleted,
				DueDate: time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC), CompletionReport: "done", WorkedHours: ptr(2),
			}},
		},
		users: &stubUsers{users: []*domain.User{root, ada, uma}},
	}
	h, err := NewConsoleHandler(f.auth, f.tasks, f.users, ConsoleConfig{SessionTTL: time.Hour}, testLog)
	if err != nil {
		t.Fatalf("new console: %v", err)
	}

	sessions := sessionStub{"sess-root": root, "sess-ada": ada}
	session := middleware.SessionMiddleware(sessions, "taskdesk_session", "/console/login", testLog)
	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	r.Mount("/console", h.Routes(session, passthrough))
	f.handler = r
	return f
}

func (f *consoleFixture) do(method, path, session string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "taskdesk_session", Value: session})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestConsoleLogin(t *testing.T) {
	f := newConsoleFixture(t)

	if rec := f.do(http.MethodGet, "/console/login", "", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Sign in") {
		t.Fatalf("login page not rendered: %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/console/login", "", url.Values{"username": {"uma"}, "password": {"Password123"}})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "only available to admin") {
		t.Fatalf("role=user must not enter the console, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/console/login", "", url.Values{"username": {"ada"}, "password": {"wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/console/login", "", url.Values{
		"username": {"ada"}, "password": {"Password123"}, "next": {"https://evil.example/"},
	})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/console/" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "sess-ada" || !cookies[0].HttpOnly {
		t.Fatalf("unexpected session cookie %+v", cookies)
	}
}

func TestConsoleRequiresSession(t *testing.T) {
	f := newConsoleFixture(t)
	rec := f.do(http.MethodGet, "/console/tasks", "", nil)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/console/login") {
		t.Fatalf("expected login redirect, got %d", rec.Code)
	}
}

func TestConsolePages(t *testing.T) {
	f := newConsoleFixture(t)

	for _, path := range []string{"/console/", "/console/tasks", "/console/tasks/10", "/console/tasks/10/edit", "/console/tasks/new", "/console/users", "/console/users/new", "/console/users/4/edit"} {
		rec := f.do(http.MethodGet, path, "sess-root", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	rec := f.do(http.MethodGet, "/console/tasks/10", "sess-root", nil)
	if !strings.Contains(rec.Body.String(), "uma") {
		t.Fatalf("assignee name missing from detail page")
	}
}

func TestConsoleEditKeepsCompletedStatusOutOfPatch(t *testing.T) {
	f := newConsoleFixture(t)

	rec := f.do(http.MethodPost, "/console/tasks/10", "sess-ada", url.Values{
		"title": {"Ship it"}, "assigned_to": {"4"}, "due_date": {"2030-01-15"},
		"status": {"completed"}, "completion_report": {"done"}, "worked_hours": {"2"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.tasks.lastPatch.Status != nil {
		t.Fatalf("unchanged status must not be sent as a transition")
	}
	if f.tasks.lastPatch.WorkedHours == nil || *f.tasks.lastPatch.WorkedHours != 2 {
		t.Fatalf("hours not forwarded")
	}

	rec = f.do(http.MethodPost, "/console/tasks/10", "sess-ada", url.Values{
		"title": {"Ship it"}, "assigned_to": {"4"}, "due_date": {"2030-01-15"},
		"status": {"pending"}, "worked_hours": {"two"},
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "whole number") {
		t.Fatalf("expected form re-render with hours error, got %d", rec.Code)
	}
}

func TestConsoleFormShowsServiceErrors(t *testing.T) {
	f := newConsoleFixture(t)
	f.users.err = domain.ErrConflict

	rec := f.do(http.MethodPost, "/console/users", "sess-root", url.Values{
		"username": {"ada"}, "password": {"Password123"}, "role": {"admin"},
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "already exists") {
		t.Fatalf("expected conflict on form, got %d", rec.Code)
	}

	f.users.err = domain.ErrForbidden
	rec = f.do(http.MethodPost, "/console/users/1/delete", "sess-ada", url.Values{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 page, got %d", rec.Code)
	}
}

func TestConsoleLogout(t *testing.T) {
	f := newConsoleFixture(t)
	rec := f.do(http.MethodPost, "/console/logout", "sess-root", url.Values{})
	if rec.Code != http.StatusSeeOther || f.auth.loggedOut != "sess-root" {
		t.Fatalf("expected logout of sess-root, got %d %q", rec.Code, f.auth.loggedOut)
	}
}
