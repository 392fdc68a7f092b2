package account

import (
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the unauthenticated endpoints.
func (h *Handler) RegisterPublicRoutes(e *echo.Group) {
	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
}

// RegisterRoutes mounts the endpoints behind the auth middleware.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/logout", h.Logout)
	api.GET("/profile", h.Profile)
}

func actorFrom(c echo.Context) auth.Actor {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	return actor
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, u, "user registered")
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	session, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, session, "login successful")
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), actorFrom(c)); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, nil, "logged out")
}

func (h *Handler) Profile(c echo.Context) error {
	u, err := h.svc.Profile(c.Request().Context(), actorFrom(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, u, "profile retrieved")
}
