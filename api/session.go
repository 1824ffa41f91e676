package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name string `json:"name"`
}

// userResponse is a user without the password hash.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (s *Server) session(c echo.Context, status int, u domain.User) error {
	token, exp, err := s.auth.Issue(u)
	if err != nil {
		return s.fail(c, fmt.Errorf("issue token: %w", err))
	}
	return c.JSON(status, sessionResponse{Token: token, ExpiresAt: exp, User: toUserResponse(u)})
}

func (s *Server) signUp(c echo.Context) error {
	var req signUpRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	ctx := c.Request().Context()
	u, err := s.users.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	s.activity.Add(ctx, u.ID, domain.ActivityUserSignup, u.Name+" signed up", "", map[string]any{"email": u.Email})
	return s.session(c, http.StatusCreated, u)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	ctx := c.Request().Context()
	u, err := s.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	s.activity.Add(ctx, u.ID, domain.ActivityUserLogin, u.Name+" logged in", "", map[string]any{"email": u.Email})
	return s.session(c, http.StatusOK, u)
}

func (s *Server) logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.users.Logout(ctx); err != nil {
		return s.fail(c, err)
	}
	s.activity.Add(ctx, userIDFrom(c), domain.ActivityUserLogout, "User logged out", "", nil)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	u, err := s.users.Get(c.Request().Context(), userIDFrom(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

func (s *Server) updateProfile(c echo.Context) error {
	var req profileRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	u, err := s.users.UpdateProfile(c.Request().Context(), userIDFrom(c), req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}
