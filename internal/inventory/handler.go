package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/platform/httpx"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter *Exporter
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		exporter: NewExporter(),
		validate: validator.New(),
		rbac:     rbac,
	}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("inventory.view"))
		r.Get("/movements", h.listMovements)
		r.Get("/records", h.listRecords)
		r.Get("/records/export", h.exportRecords)
		r.Get("/records/{id}", h.getRecord)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("inventory.edit"))
		r.Post("/adjustments", h.postAdjustment)
		r.Post("/quick-update", h.postQuickUpdate)
		r.Patch("/records/{id}/remarks", h.patchRecordRemarks)
	})
}

type itemRefRequest struct {
	Type string `json:"type" validate:"required,oneof=material fragrance"`
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
}

func (r itemRefRequest) ref() ItemRef {
	return ItemRef{Type: ItemType(r.Type), ID: r.ID, Code: r.Code}
}

type adjustmentRequest struct {
	Item      itemRefRequest  `json:"item" validate:"required"`
	Qty       decimal.Decimal `json:"qty"`
	Direction string          `json:"direction" validate:"required,oneof=add subtract"`
	Reason    string          `json:"reason" validate:"required,max=200"`
	Remarks   string          `json:"remarks" validate:"max=500"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	operator := shared.OperatorFromSession(shared.SessionFromContext(r.Context()))
	mutation, err := h.service.ManualAdjust(r.Context(), AdjustInput{
		Ref:       req.Item.ref(),
		Qty:       req.Qty,
		Direction: Direction(req.Direction),
		Reason:    req.Reason,
		Remarks:   req.Remarks,
		Operator:  operator,
	})
	if err != nil {
		h.respondError(w, "post adjustment", err)
		return
	}
	httpx.OK(w, map[string]any{"items_mutated": []ItemMutation{mutation}})
}

type quickUpdateRequest struct {
	Lines []struct {
		Item        itemRefRequest  `json:"item" validate:"required"`
		NewQuantity decimal.Decimal `json:"new_quantity"`
	} `json:"lines" validate:"required,min=1,dive"`
	Remarks string `json:"remarks" validate:"max=500"`
}

func (h *Handler) postQuickUpdate(w http.ResponseWriter, r *http.Request) {
	var req quickUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]QuickLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, QuickLine{Ref: line.Item.ref(), NewQuantity: line.NewQuantity})
	}
	operator := shared.OperatorFromSession(shared.SessionFromContext(r.Context()))
	result, err := h.service.QuickUpdate(r.Context(), lines, operator, req.Remarks)
	if err != nil {
		h.respondError(w, "quick update", err)
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter := MovementFilter{
		ItemType: ItemType(q.Get("item_type")),
		ItemID:   itemID,
		Type:     MovementType(q.Get("type")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	httpx.OK(w, map[string]any{
		"movements":  movements,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	records, total, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list records", err)
		return
	}
	httpx.OK(w, map[string]any{
		"records":    records,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid record id")
		return
	}
	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.respondError(w, "get record", err)
		return
	}
	httpx.OK(w, record)
}

type remarksRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}

func (h *Handler) patchRecordRemarks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid record id")
		return
	}
	var req remarksRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	operator := shared.OperatorFromSession(shared.SessionFromContext(r.Context()))
	if err := h.service.UpdateRecordRemarks(r.Context(), id, req.Remarks, operator); err != nil {
		h.respondError(w, "update record remarks", err)
		return
	}
	httpx.OK(w, map[string]any{"record_id": id})
}

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	filter.PerPage = exportPageSize
	records, err := h.service.ExportRecords(r.Context(), filter)
	if err != nil {
		h.respondError(w, "export records", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory_records.csv"`)
	if err := h.exporter.WriteCSV(w, records); err != nil {
		h.logger.Error("export records csv", slog.Any("error", err))
	}
}

func recordFilterFromQuery(r *http.Request) (RecordFilter, error) {
	q := r.URL.Query()
	filter := RecordFilter{Type: MovementType(q.Get("type"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return RecordFilter{}, errors.New("invalid from date")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return RecordFilter{}, errors.New("invalid to date")
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return filter, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var unresolved *UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		httpx.ProblemWithMeta(w, http.StatusNotFound, "Not Found", "some items could not be resolved", map[string]any{"failed_items": unresolved.Refs})
	case errors.Is(err, ErrPreconditionFailed):
		httpx.Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrDocumentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

const exportPageSize = 1000
