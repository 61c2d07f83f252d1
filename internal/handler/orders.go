package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/middleware"
	"github.com/bengkelku/api/internal/reconcile"
	"github.com/bengkelku/api/internal/service"
	"github.com/bengkelku/api/internal/store"
)

// OrderStore defines the read methods needed by order handlers.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (domain.WorkOrder, error)
	ListOrders(ctx context.Context, limit, offset int) ([]domain.WorkOrder, error)
}

// Saver is the write surface of the order handlers. Satisfied by
// *service.Orchestrator.
type Saver interface {
	NewOrder(ctx context.Context, client, vehicle string, createdBy uuid.UUID) (domain.WorkOrder, error)
	Save(ctx context.Context, req service.SaveRequest) (*service.SaveResult, error)
	Validate(ctx context.Context, rows []reconcile.Row, openSnapshot map[uuid.UUID]decimal.Decimal) ([]reconcile.Warning, error)
	Settle(ctx context.Context, orderID uuid.UUID, allowOverride bool) (*service.SaveResult, error)
	Reopen(ctx context.Context, orderID uuid.UUID) (*service.SaveResult, error)
}

// OrderHandler handles work-order endpoints.
type OrderHandler struct {
	store OrderStore
	svc   Saver
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(store OrderStore, svc Saver) *OrderHandler {
	return &OrderHandler{store: store, svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/lines", h.SaveLines)
	r.Post("/{id}/validate", h.Validate)
	r.Post("/{id}/settle", h.Settle)
	r.Post("/{id}/reopen", h.Reopen)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Client  string `json:"client"`
	Vehicle string `json:"vehicle"`
}

// lineRow is one grid row as the editing surface submits it: everything
// still text, exactly as typed. Normalization parses and classifies.
type lineRow struct {
	RecordID     string `json:"record_id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Counterparty string `json:"counterparty"`
	InventoryID  string `json:"inventory_id"`
	Qty          string `json:"qty"`
	Price        string `json:"price"`
}

type saveLinesRequest struct {
	Rows []lineRow `json:"rows"`
	// OpenSnapshot is the per-item quantity map captured when the order was
	// opened for editing, keyed by inventory item ID.
	OpenSnapshot map[string]string `json:"open_snapshot"`
	Settle       bool              `json:"settle"`
	Override     bool              `json:"override"`
}

type validateRequest struct {
	Rows         []lineRow         `json:"rows"`
	OpenSnapshot map[string]string `json:"open_snapshot"`
}

type settleRequest struct {
	Override bool `json:"override"`
}

type warningResponse struct {
	RecordID uuid.UUID `json:"record_id"`
	Field    string    `json:"field"`
	Message  string    `json:"message"`
}

type orderResponse struct {
	ID         uuid.UUID         `json:"id"`
	Number     string            `json:"number"`
	Status     string            `json:"status"`
	OpenedAt   string            `json:"opened_at"`
	SettledAt  *string           `json:"settled_at"`
	Client     string            `json:"client"`
	Vehicle    string            `json:"vehicle"`
	Lines      []domain.LineItem `json:"lines"`
	PartsTotal string            `json:"parts_total"`
	LaborTotal string            `json:"labor_total"`
	GrandTotal string            `json:"grand_total"`
}

type saveResponse struct {
	Order        orderResponse     `json:"order"`
	Warnings     []warningResponse `json:"warnings"`
	Notices      []string          `json:"notices"`
	OpenSnapshot map[string]string `json:"open_snapshot"`
	Flagged      bool              `json:"flagged"`
}

func toOrderResponse(o domain.WorkOrder) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		Number:     o.Number,
		Status:     o.Status(),
		OpenedAt:   o.OpenedAt.Format("2006-01-02T15:04:05Z07:00"),
		Client:     o.Client,
		Vehicle:    o.Vehicle,
		Lines:      o.Lines,
		PartsTotal: o.PartsTotal.StringFixed(2),
		LaborTotal: o.LaborTotal.StringFixed(2),
		GrandTotal: o.GrandTotal.StringFixed(2),
	}
	if o.SettledAt != nil {
		s := o.SettledAt.Format("2006-01-02T15:04:05Z07:00")
		resp.SettledAt = &s
	}
	return resp
}

func toWarningResponses(warnings []reconcile.Warning) []warningResponse {
	resp := make([]warningResponse, len(warnings))
	for i, wn := range warnings {
		resp[i] = warningResponse{RecordID: wn.RecordID, Field: wn.Field, Message: wn.Message}
	}
	return resp
}

func toSaveResponse(res *service.SaveResult) saveResponse {
	snap := make(map[string]string, len(res.OpenSnapshot))
	for id, qty := range res.OpenSnapshot {
		snap[id.String()] = qty.String()
	}
	notices := res.Notices
	if notices == nil {
		notices = []string{}
	}
	return saveResponse{
		Order:        toOrderResponse(res.Order),
		Warnings:     toWarningResponses(res.Warnings),
		Notices:      notices,
		OpenSnapshot: snap,
		Flagged:      res.Flagged,
	}
}

// --- Helpers ---

func toRows(rows []lineRow) []reconcile.Row {
	out := make([]reconcile.Row, len(rows))
	for i, r := range rows {
		out[i] = reconcile.Row{
			RecordID:     r.RecordID,
			Kind:         r.Kind,
			Name:         r.Name,
			Counterparty: r.Counterparty,
			InventoryID:  r.InventoryID,
			Qty:          r.Qty,
			Price:        r.Price,
		}
	}
	return out
}

func parseOpenSnapshot(m map[string]string) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(m))
	for k, v := range m {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, nil
}

func allowOverride(r *http.Request, requested bool) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	return requested && claims != nil && claims.CanOverrideWarnings()
}

func writeSaveError(w http.ResponseWriter, res *service.SaveResult, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrOrderSettled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is settled; reopen it first"})
	case errors.Is(err, service.ErrOrderNotSettled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not settled"})
	case errors.Is(err, service.ErrValidationBlocked):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    "unresolved warnings block settlement",
			"warnings": toWarningResponses(res.Warnings),
		})
	default:
		var stepErr *service.PersistStepError
		if errors.As(err, &stepErr) {
			logrus.WithError(stepErr.Err).WithField("step", stepErr.Step).Error("handler: save pipeline")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "save failed at step " + stepErr.Step + "; retry the save",
			})
			return
		}
		logrus.WithError(err).Error("handler: save order")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// --- Handlers ---

// List returns orders, newest first. Supports limit/offset paging.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	orders, err := h.store.ListOrders(r.Context(), limit, offset)
	if err != nil {
		logrus.WithError(err).Error("handler: list orders")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single order by ID.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		logrus.WithError(err).Error("handler: get order")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Create opens a new empty order.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var createdBy uuid.UUID
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = claims.UserID
	}

	order, err := h.svc.NewOrder(r.Context(), req.Client, req.Vehicle, createdBy)
	if err != nil {
		logrus.WithError(err).Error("handler: create order")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// SaveLines replaces the order's line items with the submitted grid and
// runs the full reconciliation pipeline.
func (h *OrderHandler) SaveLines(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req saveLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	openSnap, err := parseOpenSnapshot(req.OpenSnapshot)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid open_snapshot"})
		return
	}

	res, err := h.svc.Save(r.Context(), service.SaveRequest{
		OrderID:       id,
		Rows:          toRows(req.Rows),
		OpenSnapshot:  openSnap,
		Settle:        req.Settle,
		AllowOverride: allowOverride(r, req.Override),
	})
	if err != nil {
		writeSaveError(w, res, err)
		return
	}

	writeJSON(w, http.StatusOK, toSaveResponse(res))
}

// Validate recomputes warnings for the submitted rows without saving.
func (h *OrderHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if _, err := uuid.Parse(chi.URLParam(r, "id")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	openSnap, err := parseOpenSnapshot(req.OpenSnapshot)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid open_snapshot"})
		return
	}

	warnings, err := h.svc.Validate(r.Context(), toRows(req.Rows), openSnap)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"warnings": toWarningResponses(warnings)})
}

// Settle closes the order as stored, without changing its lines.
func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req settleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	res, err := h.svc.Settle(r.Context(), id, allowOverride(r, req.Override))
	if err != nil {
		writeSaveError(w, res, err)
		return
	}

	writeJSON(w, http.StatusOK, toSaveResponse(res))
}

// Reopen clears the order's settled state so its lines can be edited again.
func (h *OrderHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	res, err := h.svc.Reopen(r.Context(), id)
	if err != nil {
		writeSaveError(w, res, err)
		return
	}

	writeJSON(w, http.StatusOK, toSaveResponse(res))
}
