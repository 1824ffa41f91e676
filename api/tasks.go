package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
}

type moveTaskRequest struct {
	From domain.Status `json:"from"`
	To   domain.Status `json:"to"`
}

type reorderRequest struct {
	TaskIDs []string `json:"taskIds"`
}

type visibleColumn struct {
	ID    domain.Status `json:"id"`
	Title string        `json:"title"`
	Tasks []domain.Task `json:"tasks"`
}

// visibleBoard is the filtered board as the UI renders it.
type visibleBoard struct {
	Columns        []visibleColumn `json:"columns"`
	SearchQuery    string          `json:"searchQuery"`
	FilterPriority string          `json:"filterPriority"`
	FilterStatus   string          `json:"filterStatus"`
}

func newVisibleBoard(st domain.State) visibleBoard {
	out := visibleBoard{
		Columns:        make([]visibleColumn, 0, len(domain.Statuses)),
		SearchQuery:    st.SearchQuery,
		FilterPriority: st.FilterPriority,
		FilterStatus:   st.FilterStatus,
	}
	for _, status := range domain.Statuses {
		out.Columns = append(out.Columns, visibleColumn{
			ID:    status,
			Title: st.Columns[status].Title,
			Tasks: domain.VisibleColumn(st, status),
		})
	}
	return out
}

func (s *Server) getBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.board.State())
}

func (s *Server) getVisible(c echo.Context) error {
	return c.JSON(http.StatusOK, newVisibleBoard(s.board.State()))
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.board.Stats())
}

func (s *Server) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.String(http.StatusBadRequest, "title is required")
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	userID := userIDFrom(c)
	t, err := s.board.AddTask(domain.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		UserID:      userID,
	})
	if err != nil {
		return s.fail(c, err)
	}
	s.activity.Add(c.Request().Context(), userID, domain.ActivityTaskCreated,
		fmt.Sprintf("Created task %q", t.Title), t.ID, map[string]any{"priority": string(t.Priority)})
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c echo.Context) error {
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		patch.Title = &title
	}
	id := c.Param("id")
	before, ok := s.board.Task(id)
	if !ok {
		return s.fail(c, domain.ErrTaskNotFound)
	}
	t, err := s.board.UpdateTask(id, patch)
	if err != nil {
		return s.fail(c, err)
	}
	ctx := c.Request().Context()
	if t.Status != before.Status {
		s.recordMove(c, t, before.Status)
	} else {
		s.activity.Add(ctx, userIDFrom(c), domain.ActivityTaskUpdated, fmt.Sprintf("Updated task %q", t.Title), t.ID, nil)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	t, err := s.board.DeleteTask(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	s.activity.Add(c.Request().Context(), userIDFrom(c), domain.ActivityTaskDeleted, fmt.Sprintf("Deleted task %q", t.Title), t.ID, nil)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) moveTask(c echo.Context) error {
	var req moveTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	id := c.Param("id")
	before, ok := s.board.Task(id)
	if !ok {
		return s.fail(c, domain.ErrTaskNotFound)
	}
	t, err := s.board.MoveTask(id, req.From, req.To)
	if err != nil {
		return s.fail(c, err)
	}
	if t.Status != before.Status {
		s.recordMove(c, t, before.Status)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) recordMove(c echo.Context, t domain.Task, from domain.Status) {
	desc := fmt.Sprintf("Moved task %q from %s to %s", t.Title, from.Title(), t.Status.Title())
	meta := map[string]any{"from": string(from), "to": string(t.Status)}
	s.activity.Add(c.Request().Context(), userIDFrom(c), domain.ActivityTaskMoved, desc, t.ID, meta)
}

func (s *Server) reorderColumn(c echo.Context) error {
	var req reorderRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	status := domain.Status(c.Param("status"))
	if err := s.board.ReorderTasks(status, req.TaskIDs); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.board.State().Columns[status])
}

func (s *Server) setFilters(c echo.Context) error {
	var f domain.Filters
	if err := decodeBody(c, &f); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	st, err := s.board.DispatchAll(f.Commands()...)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, newVisibleBoard(st))
}
