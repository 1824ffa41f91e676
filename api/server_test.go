package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/activity"
	"taskboard/auth"
	"taskboard/board"
	"taskboard/domain"
	"taskboard/storage"
)

type testEnv struct {
	e        *echo.Echo
	store    *board.Store
	activity *activity.Log
	hook     *test.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	ctx := context.Background()
	kv := storage.NewMemoryKV()

	store := board.Open(ctx, storage.NewSnapshots(kv), board.WithLogger(logger))
	t.Cleanup(store.Close)
	users := auth.NewUsers(kv, logger)
	acts := activity.Open(ctx, kv, activity.WithLogger(logger))
	tokens := auth.NewTokens([]byte("test-secret"), "taskboard", "", time.Hour, nil)

	e := echo.New()
	New(store, users, acts, tokens, logger).Register(e)
	return &testEnv{e: e, store: store, activity: acts, hook: hook}
}

func (env *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (env *testEnv) signUp(t *testing.T) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[sessionResponse](t, rec)
	if resp.Token == "" {
		t.Fatalf("expected token")
	}
	return resp.Token
}

func TestSignUpLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ada@example.com","password":"wrong-pass"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ada@example.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	session := decode[sessionResponse](t, rec)
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/me", session.Token, `{"name":"Ada L."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/me", session.Token, "")
	if me := decode[userResponse](t, rec); me.Name != "Ada L." || me.ID != session.User.ID {
		t.Fatalf("unexpected profile: %+v", me)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/logout", session.Token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}

	var types []domain.ActivityType
	for _, e := range env.activity.List(0) {
		types = append(types, e.Type)
	}
	want := []domain.ActivityType{domain.ActivityUserLogout, domain.ActivityUserLogin, domain.ActivityUserSignup}
	if len(types) != len(want) {
		t.Fatalf("unexpected activity: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected activity: %v", types)
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"bad email":      `{"email":"nope","password":"secret1","name":"Ada"}`,
		"short password": `{"email":"ada@example.com","password":"123","name":"Ada"}`,
		"blank name":     `{"email":"ada@example.com","password":"secret1","name":"  "}`,
		"unknown field":  `{"email":"ada@example.com","password":"secret1","name":"Ada","admin":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/signup", "", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/board", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/board", "not-a-jwt", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
	token := env.signUp(t)
	if rec := env.do(t, http.MethodGet, "/api/stats?token="+token, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected query token to be accepted, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)

	rec := env.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Write spec","description":"","priority":"medium"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[domain.Task](t, rec)
	if created.Status != domain.StatusTodo || created.UserID == "" {
		t.Fatalf("unexpected task: %+v", created)
	}

	st := decode[domain.State](t, env.do(t, http.MethodGet, "/api/board", token, ""))
	if len(st.Tasks) != 4 || len(st.Columns[domain.StatusTodo].TaskIDs) != 2 {
		t.Fatalf("unexpected board after add: %d tasks, todo=%v", len(st.Tasks), st.Columns[domain.StatusTodo].TaskIDs)
	}

	rec = env.do(t, http.MethodPost, "/api/tasks/"+created.ID+"/move", token, `{"from":"todo","to":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: %d %s", rec.Code, rec.Body.String())
	}
	if moved := decode[domain.Task](t, rec); moved.Status != domain.StatusDone {
		t.Fatalf("expected done, got %s", moved.Status)
	}

	rec = env.do(t, http.MethodPatch, "/api/tasks/"+created.ID, token, `{"status":"in-progress","priority":"high"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	st = env.store.State()
	if got := st.Columns[domain.StatusInProgress].TaskIDs; got[len(got)-1] != created.ID {
		t.Fatalf("expected task appended to in-progress, got %v", got)
	}
	if err := domain.Validate(st); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}

	stats := decode[domain.Stats](t, env.do(t, http.MethodGet, "/api/stats", token, ""))
	if stats.Total != 4 || stats.InProgress != 2 || stats.CompletionPercentage != 25 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if rec := env.do(t, http.MethodDelete, "/api/tasks/"+created.ID, token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/tasks/"+created.ID, token, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/tasks/missing", token, `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 updating unknown task, got %d", rec.Code)
	}

	var types []domain.ActivityType
	for _, e := range env.activity.List(4) {
		types = append(types, e.Type)
	}
	want := []domain.ActivityType{domain.ActivityTaskDeleted, domain.ActivityTaskMoved, domain.ActivityTaskMoved, domain.ActivityTaskCreated}
	for i := range want {
		if i >= len(types) || types[i] != want[i] {
			t.Fatalf("unexpected activity: %v", types)
		}
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)
	cases := map[string]string{
		"blank title":    `{"title":"   "}`,
		"bad priority":   `{"title":"x","priority":"urgent"}`,
		"status not set": `{"title":"x","status":"done"}`,
		"not json":       `title=x`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/tasks", token, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
	if n := len(env.store.State().Tasks); n != 3 {
		t.Fatalf("rejected requests changed the board: %d tasks", n)
	}
}

func TestReorderColumn(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)
	created := decode[domain.Task](t, env.do(t, http.MethodPost, "/api/tasks", token, `{"title":"Second"}`))

	body := `{"taskIds":["` + created.ID + `","task-1"]}`
	rec := env.do(t, http.MethodPut, "/api/columns/todo/order", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder: %d %s", rec.Code, rec.Body.String())
	}
	col := decode[domain.Column](t, rec)
	if len(col.TaskIDs) != 2 || col.TaskIDs[0] != created.ID {
		t.Fatalf("unexpected order: %v", col.TaskIDs)
	}

	if rec := env.do(t, http.MethodPut, "/api/columns/todo/order", token, `{"taskIds":["task-1"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial order, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/columns/blocked/order", token, `{"taskIds":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown column, got %d", rec.Code)
	}
}

func TestFiltersShapeVisibleBoard(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)

	rec := env.do(t, http.MethodPut, "/api/filters", token, `{"filterPriority":"high"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("filters: %d %s", rec.Code, rec.Body.String())
	}
	view := decode[visibleBoard](t, rec)
	counts := map[domain.Status]int{}
	for _, col := range view.Columns {
		counts[col.ID] = len(col.Tasks)
	}
	if counts[domain.StatusTodo] != 1 || counts[domain.StatusInProgress] != 1 || counts[domain.StatusDone] != 0 {
		t.Fatalf("unexpected visible counts: %v", counts)
	}

	rec = env.do(t, http.MethodPut, "/api/filters", token, `{"searchQuery":"SETUP","filterPriority":"all"}`)
	view = decode[visibleBoard](t, rec)
	if view.SearchQuery != "SETUP" || len(view.Columns[0].Tasks) != 1 || len(view.Columns[1].Tasks) != 0 {
		t.Fatalf("unexpected search view: %+v", view)
	}

	rec = env.do(t, http.MethodPut, "/api/filters", token, `{"searchQuery":"","filterStatus":"blocked"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", rec.Code)
	}
	if st := env.store.State(); st.SearchQuery != "SETUP" {
		t.Fatalf("rejected filter batch was partially applied: %q", st.SearchQuery)
	}
}

func TestGzipRequestBody(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"title":"Compressed","priority":"low"}`))
	_ = zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("plain"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip, got %d", rec.Code)
	}
}

func TestActivityLimitAndClear(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t)
	for _, title := range []string{"a", "b", "c"} {
		env.do(t, http.MethodPost, "/api/tasks", token, `{"title":"`+title+`"}`)
	}

	rec := env.do(t, http.MethodGet, "/api/activity?limit=2", token, "")
	entries := decode[[]domain.ActivityLog](t, rec)
	if len(entries) != 2 || entries[0].Description != `Created task "c"` {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if rec := env.do(t, http.MethodGet, "/api/activity?limit=-1", token, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/activity", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rec.Code)
	}
	if entries := decode[[]domain.ActivityLog](t, env.do(t, http.MethodGet, "/api/activity", token, "")); len(entries) != 0 {
		t.Fatalf("expected empty feed, got %d", len(entries))
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrTaskNotFound, http.StatusNotFound},
		{auth.ErrUserNotFound, http.StatusNotFound},
		{auth.ErrEmailTaken, http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrInvalidOrder, http.StatusBadRequest},
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Fatalf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
