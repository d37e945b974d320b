package materials

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	mdshared "github.com/essentia-erp/essentia-erp/internal/masterdata/shared"
	"github.com/essentia-erp/essentia-erp/internal/platform/httpx"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// materialRequest deliberately has no stock fields; stock moves only through
// the inventory protocol and unknown fields are rejected at decode time.
type materialRequest struct {
	Name             string          `json:"name" validate:"required,max=200"`
	Unit             string          `json:"unit" validate:"required,max=20"`
	SafetyStockLevel decimal.Decimal `json:"safety_stock_level"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	SupplierID       *int64          `json:"supplier_id"`
	Remarks          string          `json:"remarks" validate:"max=500"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list materials failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load materials")
		return
	}
	httpx.OK(w, map[string]any{
		"materials":  list,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	material, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get material failed")
		return
	}
	httpx.OK(w, material)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), materialFromRequest(req))
	if err != nil {
		h.respondError(w, err, "create material failed")
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, materialFromRequest(req)); err != nil {
		h.respondError(w, err, "update material failed")
		return
	}
	material, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get material failed")
		return
	}
	httpx.OK(w, material)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err, "delete material failed")
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (materialRequest, bool) {
	var req materialRequest
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
	switch {
	case errors.Is(err, mdshared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "material not found")
	case errors.Is(err, mdshared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Conflict", "material code already exists")
	case errors.Is(err, mdshared.ErrInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", "material is referenced by open orders")
	case errors.Is(err, mdshared.ErrInvalidID):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
	default:
		h.logger.Error(msg, "error", err)
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	}
}

func materialFromRequest(req materialRequest) Material {
	return Material{
		Name:             req.Name,
		Unit:             req.Unit,
		SafetyStockLevel: req.SafetyStockLevel,
		CostPerUnit:      req.CostPerUnit,
		SupplierID:       req.SupplierID,
		Remarks:          req.Remarks,
	}
}

func filtersFromQuery(r *http.Request) mdshared.ListFilters {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = mdshared.DefaultPage
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = mdshared.DefaultLimit
	}
	filters := mdshared.ListFilters{
		Page:        page,
		Limit:       limit,
		Search:      r.URL.Query().Get("search"),
		SortBy:      r.URL.Query().Get("sort"),
		SortDir:     r.URL.Query().Get("dir"),
		BelowSafety: r.URL.Query().Get("below_safety") == "true",
	}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.SupplierID = &id
		}
	}
	return filters
}
