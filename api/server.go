// Package api exposes the task board, user sessions and the activity feed
// over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/auth"
	"taskboard/domain"
)

const maxBodySize = 64 << 10

// Board is the task board store the handlers dispatch commands to.
type Board interface {
	State() domain.State
	Stats() domain.Stats
	Task(id string) (domain.Task, bool)
	AddTask(domain.NewTask) (domain.Task, error)
	UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(id string) (domain.Task, error)
	MoveTask(id string, source, dest domain.Status) (domain.Task, error)
	ReorderTasks(status domain.Status, taskIDs []string) error
	DispatchAll(cmds ...domain.Command) (domain.State, error)
	Subscribe() (<-chan struct{}, func())
}

type Users interface {
	SignUp(ctx context.Context, email, password, name string) (domain.User, error)
	Login(ctx context.Context, email, password string) (domain.User, error)
	Logout(ctx context.Context) error
	Get(ctx context.Context, id string) (domain.User, error)
	UpdateProfile(ctx context.Context, id, name string) (domain.User, error)
}

type Activity interface {
	Add(ctx context.Context, actor string, typ domain.ActivityType, description, taskID string, metadata map[string]any) (domain.ActivityLog, bool)
	List(limit int) []domain.ActivityLog
	Clear(ctx context.Context) error
}

// Authenticator issues session tokens and resolves bearer tokens to user ids.
type Authenticator interface {
	Issue(u domain.User) (string, time.Time, error)
	UserIDFromAuthHeader(string) (string, error)
}

type Server struct {
	board    Board
	users    Users
	activity Activity
	auth     Authenticator
	logger   *log.Logger
}

func New(b Board, users Users, activity Activity, authn Authenticator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{board: b, users: users, activity: activity, auth: authn, logger: logger}
}

// Register wires up all routes and middleware on e.
func (s *Server) Register(e *echo.Echo) {
	e.JSONSerializer = sonicSerializer{}
	e.Use(RequestMetrics(s.logger), GzipRequestMiddleware())

	e.GET("/healthz", healthz)

	e.POST("/api/auth/signup", s.signUp)
	e.POST("/api/auth/login", s.login)

	g := e.Group("/api", RequireUser(s.auth))
	g.POST("/auth/logout", s.logout)
	g.GET("/me", s.me)
	g.PATCH("/me", s.updateProfile)

	g.GET("/board", s.getBoard)
	g.GET("/board/visible", s.getVisible)
	g.GET("/stats", s.getStats)
	g.POST("/tasks", s.createTask)
	g.PATCH("/tasks/:id", s.updateTask)
	g.DELETE("/tasks/:id", s.deleteTask)
	g.POST("/tasks/:id/move", s.moveTask)
	g.PUT("/columns/:status/order", s.reorderColumn)
	g.PUT("/filters", s.setFilters)

	g.GET("/activity", s.listActivity)
	g.DELETE("/activity", s.clearActivity)

	g.GET("/stream", s.stream)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// errorStatus maps store and registry errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateTask), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrMissingTaskID),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("route", c.Path()).Error("request failed")
		return c.String(status, "internal error")
	}
	return c.String(status, err.Error())
}

func decodeBody(c echo.Context, v any) error {
	return c.Echo().JSONSerializer.Deserialize(c, v)
}

// sonicSerializer replaces echo's encoding/json based serializer.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}
