package patient

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/query"
	"github.com/clinrec/clinrec/internal/platform/respond"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Handler struct {
	svc  *Service
	gate *consent.Gate
	log  zerolog.Logger
	env  string
}

func NewHandler(svc *Service, gate *consent.Gate, log zerolog.Logger, env string) *Handler {
	return &Handler{svc: svc, gate: gate, log: log, env: env}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.List)
	api.GET("/patients/metrics", h.Metrics)
	api.GET("/patients/:id", h.Get)
	api.GET("/patients/:id/candidates", h.Candidates, auth.RequireAdmin())
	api.POST("/patients", h.Create)
	api.POST("/patients/:id/merge", h.Merge, auth.RequireAdmin())
	api.PUT("/patients/:id", h.Update)
	api.PATCH("/patients/:id", h.Update)
	api.DELETE("/patients/:id", h.Delete)
}

func actorFrom(c echo.Context) auth.Actor {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	return actor
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	sortKey, direction := query.SortParams(c)

	patients, total, plan, err := h.svc.List(c.Request().Context(), query.Params(c), sortKey, direction, pg)
	if err != nil {
		return respond.Error(c, err)
	}
	query.WarnUnknown(h.log, h.env, "patients", plan)
	return respond.OK(c, pagination.NewResponse(patients, total, pg), "patients retrieved")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	ctx := c.Request().Context()
	actor := actorFrom(c)
	if err := h.gate.Authorize(ctx, actor, id, consent.ScopePartial); err != nil {
		return respond.Error(c, err)
	}
	p, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, p, "patient retrieved")
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
	return respond.Created(c, p, "patient created")
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
	return respond.OK(c, p, "patient updated")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, nil, "patient deleted")
}

func (h *Handler) Candidates(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	candidates, err := h.svc.FindCandidates(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, candidates, "duplicate candidates retrieved")
}

func (h *Handler) Merge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	var body struct {
		DuplicateID uuid.UUID `json:"duplicate_id"`
	}
	if err := c.Bind(&body); err != nil || body.DuplicateID == uuid.Nil {
		return respond.Error(c, apperr.Validationf("duplicate_id", "required"))
	}
	p, err := h.svc.Merge(c.Request().Context(), actorFrom(c), id, body.DuplicateID)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, p, "patients merged")
}

func (h *Handler) Metrics(c echo.Context) error {
	m, err := h.svc.Metrics(c.Request().Context())
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, m, "patient metrics retrieved")
}
