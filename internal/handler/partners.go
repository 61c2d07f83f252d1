package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/service"
	"github.com/bengkelku/api/internal/store"
)

// PartnerStore defines the store methods needed by partner handlers.
type PartnerStore interface {
	ListPartners(ctx context.Context, kind string) ([]domain.Partner, error)
	GetPartner(ctx context.Context, kind string, id uuid.UUID) (domain.Partner, error)
	PutPartner(ctx context.Context, p domain.Partner) error
}

// PayrollSettler marks a worker's outstanding payroll records paid.
// Satisfied by *service.Orchestrator.
type PayrollSettler interface {
	SettlePayroll(ctx context.Context, workerID uuid.UUID) (*service.PayrollSummary, error)
}

// PartnerHandler serves one counterparty kind: supplier shops or workers.
// Both expose the same listing and history endpoints; workers additionally
// expose payroll settlement.
type PartnerHandler struct {
	store     PartnerStore
	refresher Refresher
	kind      string
	payroll   PayrollSettler
}

// NewShopHandler creates a PartnerHandler for supplier shops.
func NewShopHandler(store PartnerStore, refresher Refresher) *PartnerHandler {
	return &PartnerHandler{store: store, refresher: refresher, kind: enum.PartnerKindShop}
}

// NewWorkerHandler creates a PartnerHandler for workers.
func NewWorkerHandler(store PartnerStore, refresher Refresher, payroll PayrollSettler) *PartnerHandler {
	return &PartnerHandler{store: store, refresher: refresher, kind: enum.PartnerKindWorker, payroll: payroll}
}

// RegisterRoutes registers partner endpoints on the given Chi router.
// Expected to be mounted at /shops or /workers.
func (h *PartnerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Get("/{id}/history", h.History)
	if h.kind == enum.PartnerKindWorker {
		r.Post("/{id}/payroll", h.SettlePayroll)
	}
}

// --- Request / Response types ---

type partnerRequest struct {
	Name           string `json:"name"`
	PayrollPercent string `json:"payroll_percent"`
}

type partnerResponse struct {
	ID             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	Name           string    `json:"name"`
	PayrollPercent string    `json:"payroll_percent,omitempty"`
}

type historyDayResponse struct {
	Day     string               `json:"day"`
	Entries []domain.LedgerEntry `json:"entries"`
}

type payrollResponse struct {
	WorkerID  uuid.UUID `json:"worker_id"`
	Settled   int       `json:"settled"`
	Total     string    `json:"total"`
	SettledAt string    `json:"settled_at"`
}

func toPartnerResponse(p domain.Partner) partnerResponse {
	resp := partnerResponse{ID: p.ID, Kind: p.Kind, Name: p.Name}
	if p.Kind == enum.PartnerKindWorker {
		resp.PayrollPercent = p.PayrollPercent.String()
	}
	return resp
}

// --- Handlers ---

// List returns all partners of this handler's kind.
func (h *PartnerHandler) List(w http.ResponseWriter, r *http.Request) {
	partners, err := h.store.ListPartners(r.Context(), h.kind)
	if err != nil {
		logrus.WithError(err).Error("handler: list partners")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]partnerResponse, len(partners))
	for i, p := range partners {
		resp[i] = toPartnerResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single partner by ID.
func (h *PartnerHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPartnerResponse(p))
}

// Create adds a new partner of this handler's kind.
func (h *PartnerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	p := domain.Partner{
		ID:      uuid.New(),
		Kind:    h.kind,
		Name:    req.Name,
		History: domain.Ledger{},
	}
	if h.kind == enum.PartnerKindWorker {
		percent, err := parsePercent(req.PayrollPercent)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		p.PayrollPercent = percent
	}

	if err := h.store.PutPartner(r.Context(), p); err != nil {
		logrus.WithError(err).Error("handler: create partner")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, toPartnerResponse(p))
}

// Update renames a partner or, for workers, changes the payroll percent.
// History is owned by the save pipeline and not writable here.
func (h *PartnerHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	p.Name = req.Name
	if h.kind == enum.PartnerKindWorker {
		percent, err := parsePercent(req.PayrollPercent)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		p.PayrollPercent = percent
	}

	if err := h.store.PutPartner(r.Context(), p); err != nil {
		logrus.WithError(err).Error("handler: update partner")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toPartnerResponse(p))
}

// History returns the partner's nested ledger, newest day first.
func (h *PartnerHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	days := make([]string, 0, len(p.History))
	for day := range p.History {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	resp := make([]historyDayResponse, len(days))
	for i, day := range days {
		resp[i] = historyDayResponse{Day: day, Entries: p.History[day]}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SettlePayroll marks all of the worker's outstanding payroll records paid.
func (h *PartnerHandler) SettlePayroll(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid worker ID"})
		return
	}

	sum, err := h.payroll.SettlePayroll(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "worker not found"})
			return
		}
		logrus.WithError(err).Error("handler: settle payroll")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, payrollResponse{
		WorkerID:  sum.Worker.ID,
		Settled:   sum.Settled,
		Total:     sum.Total.StringFixed(2),
		SettledAt: sum.SettledAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// --- Helpers ---

func (h *PartnerHandler) load(w http.ResponseWriter, r *http.Request) (domain.Partner, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid partner ID"})
		return domain.Partner{}, false
	}

	p, err := h.store.GetPartner(r.Context(), h.kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "partner not found"})
			return domain.Partner{}, false
		}
		logrus.WithError(err).Error("handler: get partner")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return domain.Partner{}, false
	}
	return p, true
}

func parsePercent(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, errors.New("payroll_percent must be between 0 and 100")
	}
	return d, nil
}
