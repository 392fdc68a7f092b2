package auditevent

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

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
	g := api.Group("/audit-events", auth.RequireAdmin())
	g.GET("", h.List)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	sortKey, direction := query.SortParams(c)

	events, total, plan, err := h.svc.List(c.Request().Context(), query.Params(c), sortKey, direction, pg)
	if err != nil {
		return respond.Error(c, err)
	}
	query.WarnUnknown(h.log, h.env, "audit_events", plan)
	return respond.OK(c, pagination.NewResponse(events, total, pg), "audit events retrieved")
}
