package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/store"
)

// InventoryStore defines the store methods needed by inventory handlers.
type InventoryStore interface {
	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id uuid.UUID) (domain.InventoryItem, error)
	PutInventoryItem(ctx context.Context, item domain.InventoryItem) error
}

// Refresher invalidates the cached reference snapshot after reference
// data changes. Satisfied by *snapshot.Loader.
type Refresher interface {
	Invalidate(ctx context.Context)
}

// InventoryHandler handles inventory ledger endpoints.
type InventoryHandler struct {
	store     InventoryStore
	refresher Refresher
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(store InventoryStore, refresher Refresher) *InventoryHandler {
	return &InventoryHandler{store: store, refresher: refresher}
}

// RegisterRoutes registers inventory endpoints on the given Chi router.
// Expected to be mounted at /inventory.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

type inventoryItemRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	OnHand   string `json:"on_hand"`
	Unit     string `json:"unit"`
	ShopName string `json:"shop_name"`
}

type inventoryItemResponse struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Price         string     `json:"price"`
	OnHand        string     `json:"on_hand"`
	Consumed      string     `json:"consumed"`
	Remaining     string     `json:"remaining"`
	Unit          string     `json:"unit"`
	ShopName      string     `json:"shop_name"`
	LinkedOrderID *uuid.UUID `json:"linked_order_id"`
}

func toInventoryItemResponse(it domain.InventoryItem) inventoryItemResponse {
	return inventoryItemResponse{
		ID:            it.ID,
		Code:          it.Code,
		Name:          it.Name,
		Price:         it.Price.StringFixed(2),
		OnHand:        it.OnHand.String(),
		Consumed:      it.Consumed.String(),
		Remaining:     it.Remaining().String(),
		Unit:          it.Unit,
		ShopName:      it.ShopName,
		LinkedOrderID: it.LinkedOrderID,
	}
}

func (req inventoryItemRequest) validate() (price, onHand decimal.Decimal, err error) {
	if req.Name == "" {
		return price, onHand, errors.New("name is required")
	}
	price, err = decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return price, onHand, errors.New("price must be a number >= 0")
	}
	onHand, err = decimal.NewFromString(req.OnHand)
	if err != nil || onHand.IsNegative() {
		return price, onHand, errors.New("on_hand must be a number >= 0")
	}
	return price, onHand, nil
}

// --- Handlers ---

// List returns the full inventory ledger.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListInventory(r.Context())
	if err != nil {
		logrus.WithError(err).Error("handler: list inventory")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]inventoryItemResponse, len(items))
	for i, it := range items {
		resp[i] = toInventoryItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single inventory item by ID.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	item, err := h.store.GetInventoryItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		logrus.WithError(err).Error("handler: get inventory item")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInventoryItemResponse(item))
}

// Create adds a new inventory item.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, onHand, err := req.validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	item := domain.InventoryItem{
		ID:       uuid.New(),
		Code:     req.Code,
		Name:     req.Name,
		Price:    price,
		OnHand:   onHand,
		Consumed: decimal.Zero,
		Unit:     req.Unit,
		ShopName: req.ShopName,
	}
	if err := h.store.PutInventoryItem(r.Context(), item); err != nil {
		logrus.WithError(err).Error("handler: create inventory item")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, toInventoryItemResponse(item))
}

// Update modifies the reference fields of an item. Consumed and the
// linked-order reference are owned by the save pipeline and not
// writable here.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, onHand, err := req.validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	item, err := h.store.GetInventoryItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		logrus.WithError(err).Error("handler: load inventory item")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	item.Code = req.Code
	item.Name = req.Name
	item.Price = price
	item.OnHand = onHand
	item.Unit = req.Unit
	item.ShopName = req.ShopName

	if err := h.store.PutInventoryItem(r.Context(), item); err != nil {
		logrus.WithError(err).Error("handler: update inventory item")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toInventoryItemResponse(item))
}
