package condition

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
	api.GET("/conditions", h.List)
	api.GET("/conditions/:id", h.Get)
	api.POST("/conditions", h.Create)
	api.PUT("/conditions/:id", h.Update)
	api.PATCH("/conditions/:id", h.Update)
	api.DELETE("/conditions/:id", h.Delete)
}

func actorFrom(c echo.Context) auth.Actor {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	return actor
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	params := query.Params(c)

	if raw := params["patient_id"]; raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			return respond.Error(c, apperr.Validationf("patient_id", "invalid id"))
		}
		if err := h.gate.Authorize(ctx, actorFrom(c), patientID, consent.ScopeFull); err != nil {
			return respond.Error(c, err)
		}
	}

	pg := pagination.FromContext(c)
	sortKey, direction := query.SortParams(c)

	conditions, total, plan, err := h.svc.List(ctx, params, sortKey, direction, pg)
	if err != nil {
		return respond.Error(c, err)
	}
	query.WarnUnknown(h.log, h.env, "conditions", plan)
	return respond.OK(c, pagination.NewResponse(conditions, total, pg), "conditions retrieved")
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	ctx := c.Request().Context()
	actor := actorFrom(c)
	cond, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return respond.Error(c, err)
	}
	if err := h.gate.Authorize(ctx, actor, cond.PatientID, consent.ScopeFull); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, cond, "condition retrieved")
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("malformed request body", nil))
	}
	cond, err := h.svc.Create(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, cond, "condition created")
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
	cond, err := h.svc.Update(c.Request().Context(), actorFrom(c), id, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, cond, "condition updated")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validationf("id", "invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, nil, "condition deleted")
}
