package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/platform/httpx"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// Handler wires HTTP endpoints for purchase orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("purchasing.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("purchasing.edit"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/order", h.markOrdered)
		r.Post("/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("purchasing.receive"))
		r.Post("/{id}/receive", h.receive)
	})
}

type lineRequest struct {
	ItemType string          `json:"item_type" validate:"required,oneof=material fragrance"`
	ItemID   int64           `json:"item_id"`
	ItemCode string          `json:"item_code"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type orderRequest struct {
	SupplierID   int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate *time.Time    `json:"expected_date"`
	Note         string        `json:"note" validate:"max=500"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveRequest struct {
	Overrides      map[int64]decimal.Decimal `json:"overrides"`
	IdempotencyKey string                    `json:"idempotency_key" validate:"max=100"`
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
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)

	filter := ListFilter{
		Status:     Status(q.Get("status")),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		Page:       page,
		PerPage:    perPage,
	}
	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchase orders failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load purchase orders")
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
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get purchase order failed")
		return
	}
	httpx.OK(w, po)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	input := createInputFromRequest(req, operatorFrom(r))
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err, "create purchase order failed")
		return
	}
	httpx.Created(w, po)
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
	po, err := h.service.Update(r.Context(), id, createInputFromRequest(req, operatorFrom(r)))
	if err != nil {
		h.respondError(w, err, "update purchase order failed")
		return
	}
	httpx.OK(w, po)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, operatorFrom(r)); err != nil {
		h.respondError(w, err, "delete purchase order failed")
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}

func (h *Handler) markOrdered(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkOrdered(r.Context(), id, operatorFrom(r)); err != nil {
		h.respondError(w, err, "order transition failed")
		return
	}
	httpx.OK(w, map[string]any{"id": id, "status": StatusOrdered})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id, operatorFrom(r)); err != nil {
		h.respondError(w, err, "cancel failed")
		return
	}
	httpx.OK(w, map[string]any{"id": id, "status": StatusCancelled})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	mutations, err := h.service.Receive(r.Context(), ReceiveInput{
		OrderID:        id,
		Overrides:      req.Overrides,
		Operator:       operatorFrom(r),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, err, "receive failed")
		return
	}
	httpx.OK(w, map[string]any{"order_id": id, "status": StatusReceived, "items": mutations})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (orderRequest, bool) {
	var req orderRequest
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
		httpx.Problem(w, http.StatusNotFound, "Not Found", "purchase order not found")
	case errors.Is(err, ErrInvalidState), errors.Is(err, inventory.ErrPreconditionFailed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "request already processed")
	case errors.Is(err, ErrValidation), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(msg, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "operation failed")
	}
}

func createInputFromRequest(req orderRequest, operator shared.Operator) CreateInput {
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			Ref:      inventory.ItemRef{Type: inventory.ItemType(l.ItemType), ID: l.ItemID, Code: l.ItemCode},
			Qty:      l.Qty,
			UnitCost: l.UnitCost,
		})
	}
	return CreateInput{
		SupplierID:   req.SupplierID,
		ExpectedDate: req.ExpectedDate,
		Note:         req.Note,
		Operator:     operator,
		Lines:        lines,
	}
}

func operatorFrom(r *http.Request) shared.Operator {
	return shared.OperatorFromSession(shared.SessionFromContext(r.Context()))
}
