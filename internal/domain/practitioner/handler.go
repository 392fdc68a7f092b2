package practitioner

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/internal/platform/respond"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
	env string
}

func NewHandler(svc *Service, log zerolog.Logger, env string) *Handler {
	return &Handler{svc: svc, log: log, env: env}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/practitioners", h.List)
	api.GET("/practitioners/lookup", h.Lookup)
	api.GET("/practitioners/:id", h.Get)
	api.POST("/practitioners", h.Create)
	api.PUT("/practitioners/:id", h.Update)
	api.PATCH("/practitioners/:id", h.Update)
	api.DELETE("/practitioners/:id", h.Delete)
}

func actorFrom(c echo.Context) auth.Actor {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	return actor
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	sortKey, direction := query.SortParams(c)

	out, total, plan, err := h.svc.List(c.Request().Context(), query.Params(c), sortKey, direction, pg)
	if err != nil {
		return respond.Error(c, err)
	}
	query.WarnUnknown(h.log, h.env, "practitioners", plan)
	return respond.OK(c, pagination.NewResponse(out, total, pg), "practitioners retrieved")
}

func (h *Handler) Lookup(c echo.Context) error {
	entries, err := h.svc.Lookup(c.Request().Context(), c.QueryParam("search"))
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, entries, "practitioners retrieved")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, p, "practitioner retrieved")
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	p, err := h.svc.Create(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, p, "practitioner created")
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	p, err := h.svc.Update(c.Request().Context(), actorFrom(c), id, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, p, "practitioner updated")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, nil, "practitioner deleted")
}
