package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/middleware/auth"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/service"
	"github.com/Skotchmaster/hospital_desk/internal/transport"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return fail(c, err, "An error occurred during login")
	}

	return c.JSON(http.StatusOK, transport.LoginResponse{
		Success:   true,
		User:      transport.NewUserView(res.User),
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if _, err := h.Svc.Register(ctx, req.Username, req.Password, req.Code); err != nil {
		return fail(c, err, "An error occurred during registration")
	}

	return c.JSON(http.StatusOK, transport.MessageResponse{Success: true, Message: "Registration successful"})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	if err := h.Svc.Logout(c.Request().Context(), id); err != nil {
		return fail(c, err, "An error occurred during logout")
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Success: true, Message: "Logged out"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	u, err := h.Svc.Me(c.Request().Context(), id)
	if err != nil {
		return fail(c, err, "Failed to fetch user")
	}
	return c.JSON(http.StatusOK, transport.UserResponse{Success: true, User: transport.NewUserView(*u)})
}

func identity(c echo.Context) (models.Identity, error) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return models.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	return id, nil
}
