package production

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/platform/httpx"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// Handler wires HTTP endpoints for work orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("production.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("production.edit"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/start", h.start)
		r.Post("/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("production.complete"))
		r.Post("/{id}/complete", h.complete)
	})
}

type componentRequest struct {
	MaterialID   int64           `json:"material_id"`
	MaterialCode string          `json:"material_code"`
	PlannedQty   decimal.Decimal `json:"planned_qty"`
}

type workOrderRequest struct {
	ProductID      int64              `json:"product_id" validate:"required,gt=0"`
	TargetQuantity decimal.Decimal    `json:"target_quantity"`
	FragranceID    int64              `json:"fragrance_id"`
	FragranceCode  string             `json:"fragrance_code"`
	FragranceDose  decimal.Decimal    `json:"fragrance_dose"`
	Note           string             `json:"note" validate:"max=500"`
	Components     []componentRequest `json:"components" validate:"dive"`
}

type completeRequest struct {
	ActualQuantity decimal.Decimal           `json:"actual_quantity"`
	UsedOverrides  map[int64]decimal.Decimal `json:"used_overrides"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("limit"))
	if perPage < 1 {
		perPage = 20
	}
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)

	filter := ListFilter{
		Status:    Status(q.Get("status")),
		ProductID: productID,
		Search:    q.Get("search"),
		Page:      page,
		PerPage:   perPage,
	}
	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list work orders failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load work orders")
		return
	}
	httpx.OK(w, map[string]any{
		"orders":     orders,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get work order failed")
		return
	}
	httpx.OK(w, wo)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Create(r.Context(), createInputFromRequest(req, operatorFrom(r)))
	if err != nil {
		h.respondError(w, err, "create work order failed")
		return
	}
	httpx.Created(w, wo)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Update(r.Context(), id, createInputFromRequest(req, operatorFrom(r)))
	if err != nil {
		h.respondError(w, err, "update work order failed")
		return
	}
	httpx.OK(w, wo)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, operatorFrom(r)); err != nil {
		h.respondError(w, err, "delete work order failed")
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Confirm, StatusForecast)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Start, StatusInProgress)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Cancel, StatusCancelled)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, shared.Operator) error, to Status) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, operatorFrom(r)); err != nil {
		h.respondError(w, err, "work order transition failed")
		return
	}
	httpx.OK(w, map[string]any{"id": id, "status": to})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	mutations, err := h.service.Complete(r.Context(), CompleteInput{
		OrderID:        id,
		ActualQuantity: req.ActualQuantity,
		UsedOverrides:  req.UsedOverrides,
		Operator:       operatorFrom(r),
	})
	if err != nil {
		h.respondError(w, err, "complete failed")
		return
	}
	httpx.OK(w, map[string]any{"order_id": id, "status": StatusCompleted, "items": mutations})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid work order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (workOrderRequest, bool) {
	var req workOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	var unresolved *inventory.UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		httpx.ProblemWithMeta(w, http.StatusNotFound, "Not Found", "unresolved item references",
			map[string]any{"failed_items": unresolved.Refs})
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "work order not found")
	case errors.Is(err, ErrInvalidState), errors.Is(err, inventory.ErrPreconditionFailed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(msg, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "operation failed")
	}
}

func createInputFromRequest(req workOrderRequest, operator shared.Operator) CreateInput {
	components := make([]ComponentInput, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, ComponentInput{
			MaterialRef: inventory.ItemRef{Type: inventory.ItemTypeMaterial, ID: c.MaterialID, Code: c.MaterialCode},
			PlannedQty:  c.PlannedQty,
		})
	}
	input := CreateInput{
		ProductID:      req.ProductID,
		TargetQuantity: req.TargetQuantity,
		FragranceDose:  req.FragranceDose,
		Note:           req.Note,
		Operator:       operator,
		Components:     components,
	}
	if req.FragranceID != 0 || req.FragranceCode != "" {
		input.FragranceRef = &inventory.ItemRef{Type: inventory.ItemTypeFragrance, ID: req.FragranceID, Code: req.FragranceCode}
	}
	return input
}

func operatorFrom(r *http.Request) shared.Operator {
	return shared.OperatorFromSession(shared.SessionFromContext(r.Context()))
}
