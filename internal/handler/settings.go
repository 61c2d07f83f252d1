package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
)

// SettingsStore defines the store methods needed by settings handlers.
type SettingsStore interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	PutSettings(ctx context.Context, s domain.Settings) error
	ListCatalogNames(ctx context.Context, kind string) ([]string, error)
	AddCatalogName(ctx context.Context, kind, name string) error
}

// SettingsHandler handles validation tunables and the name catalogs the
// classifier autocompletes from.
type SettingsHandler struct {
	store     SettingsStore
	refresher Refresher
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store SettingsStore, refresher Refresher) *SettingsHandler {
	return &SettingsHandler{store: store, refresher: refresher}
}

// RegisterRoutes registers the read endpoints every role uses.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.Get)
	r.Get("/catalog/{kind}", h.Catalog)
}

// RegisterAdminRoutes registers the endpoints reserved for management.
func (h *SettingsHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/settings", h.Update)
	r.Post("/catalog/{kind}", h.AddCatalogName)
}

type settingsPayload struct {
	MarkupPercent string `json:"markup_percent"`
}

// Get returns the current settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		logrus.WithError(err).Error("handler: get settings")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{MarkupPercent: s.MarkupPercent.String()})
}

// Update replaces the settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	percent, err := decimal.NewFromString(req.MarkupPercent)
	if err != nil || percent.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "markup_percent must be a number >= 0"})
		return
	}

	if err := h.store.PutSettings(r.Context(), domain.Settings{MarkupPercent: percent}); err != nil {
		logrus.WithError(err).Error("handler: update settings")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, settingsPayload{MarkupPercent: percent.String()})
}

// Catalog returns the known names for one line kind (part or labor).
func (h *SettingsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToUpper(chi.URLParam(r, "kind"))
	if kind != enum.LineKindPart && kind != enum.LineKindLabor {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be PART or LABOR"})
		return
	}

	names, err := h.store.ListCatalogNames(r.Context(), kind)
	if err != nil {
		logrus.WithError(err).Error("handler: list catalog names")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"names": names})
}

// AddCatalogName registers a new name for line classification and
// autocomplete. Duplicates are accepted silently.
func (h *SettingsHandler) AddCatalogName(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToUpper(chi.URLParam(r, "kind"))
	if kind != enum.LineKindPart && kind != enum.LineKindLabor {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be PART or LABOR"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	if err := h.store.AddCatalogName(r.Context(), kind, req.Name); err != nil {
		logrus.WithError(err).Error("handler: add catalog name")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.refresher.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, map[string]string{"kind": kind, "name": req.Name})
}
