package consent

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
	api.GET("/consents", h.List)
	api.GET("/consents/:id", h.Get)
	api.POST("/consents", h.Create)
	api.PUT("/consents/:id", h.Update)
	api.PATCH("/consents/:id", h.Update)
	api.POST("/consents/:id/revoke", h.Revoke)
	api.DELETE("/consents/:id", h.Delete)
}

func actorFrom(c echo.Context) auth.Actor {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	return actor
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	sortKey, direction := query.SortParams(c)

	consents, total, plan, err := h.svc.List(c.Request().Context(), query.Params(c), sortKey, direction, pg)
	if err != nil {
		return respond.Error(c, err)
	}
	query.WarnUnknown(h.log, h.env, "consents", plan)
	return respond.OK(c, pagination.NewResponse(consents, total, pg), "consents retrieved")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	cs, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, cs, "consent retrieved")
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	cs, err := h.svc.Create(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, cs, "consent created")
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
	cs, err := h.svc.Update(c.Request().Context(), actorFrom(c), id, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, cs, "consent updated")
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	cs, err := h.svc.Revoke(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, cs, "consent revoked")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, nil, "consent deleted")
}
