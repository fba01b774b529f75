// Package api serves the dashboard HTTP API over the engine.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsignal/k8s-insight/pkg/engine"
	"github.com/opsignal/k8s-insight/pkg/models"
	"github.com/opsignal/k8s-insight/pkg/store"
)

// Handler serves the insight HTTP API.
type Handler struct {
	engine  *engine.Engine
	version string
}

// NewHandler builds a Handler bound to the engine.
func NewHandler(eng *engine.Engine, version string) *Handler {
	return &Handler{engine: eng, version: version}
}

// Register wires all API endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", h.health)
	mux.HandleFunc("/api/v1/summary", h.summary)
	mux.HandleFunc("/api/v1/alerts", h.alerts)
	mux.HandleFunc("/api/v1/alerts/read", h.markRead)
	mux.HandleFunc("/api/v1/alerts/dismiss", h.dismissAlert)
	mux.HandleFunc("/api/v1/recommendations", h.recommendations)
	mux.HandleFunc("/api/v1/recommendations/implement", h.implement)
	mux.HandleFunc("/api/v1/recommendations/dismiss", h.dismissRecommendation)
	mux.HandleFunc("/api/v1/budgets", h.budgets)
	mux.HandleFunc("/api/v1/policies", h.policies)
	mux.HandleFunc("/api/v1/refresh", h.refresh)
}

type alertPayload struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Namespace  string    `json:"namespace,omitempty"`
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observedAt"`
	Lifecycle  string    `json:"lifecycle"`
}

type recommendationPayload struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	AnnualSavingsUSD  float64  `json:"annualSavingsUsd"`
	Priority          string   `json:"priority"`
	AffectedResources []string `json:"affectedResources"`
	Implemented       bool     `json:"implemented"`
}

type budgetPayload struct {
	Namespace      string  `json:"namespace"`
	BudgetAmount   float64 `json:"budgetAmount"`
	SpentAmount    float64 `json:"spentAmount"`
	PercentageUsed int     `json:"percentageUsed"`
	Status         string  `json:"status"`
}

type policyPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	Severity       string   `json:"severity"`
	Namespaces     []string `json:"namespaces,omitempty"`
	ViolationCount int      `json:"violationCount"`
}

type domainPayload struct {
	Domain      string    `json:"domain"`
	LastUpdated time.Time `json:"lastUpdated"`
	Error       string    `json:"error,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	domains := h.engine.DomainHealth()
	status := "ok"
	payload := make([]domainPayload, 0, len(domains))
	for _, d := range domains {
		if d.Error != "" {
			status = "degraded"
		}
		payload = append(payload, domainPayload{
			Domain:      string(d.Domain),
			LastUpdated: d.LastUpdated,
			Error:       d.Error,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"version":   h.version,
		"domains":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary := h.engine.Summary()
	respondJSON(w, http.StatusOK, map[string]any{
		"totalAlerts":           summary.TotalAlerts,
		"unreadCount":           summary.UnreadCount,
		"criticalCount":         summary.CriticalCount,
		"totalPotentialSavings": summary.TotalPotentialSavings,
	})
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	kind := models.AlertKind(r.URL.Query().Get("kind"))
	alerts := h.engine.ListAlerts(kind)
	payload := make([]alertPayload, 0, len(alerts))
	for _, a := range alerts {
		payload = append(payload, alertPayload{
			ID:         a.ID,
			Kind:       string(a.Kind),
			Severity:   string(a.Severity),
			Title:      a.Title,
			Message:    a.Message,
			Namespace:  a.Namespace,
			Value:      a.Value,
			ObservedAt: a.ObservedAt,
			Lifecycle:  string(a.Lifecycle),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.engine.MarkRead)
}

func (h *Handler) dismissAlert(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.engine.Dismiss)
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	filter := store.RecommendationFilter{
		Category: models.RecommendationCategory(r.URL.Query().Get("category")),
		Priority: models.Priority(r.URL.Query().Get("priority")),
	}
	recs := h.engine.ListRecommendations(filter)
	payload := make([]recommendationPayload, 0, len(recs))
	for _, rec := range recs {
		payload = append(payload, recommendationPayload{
			ID:                rec.ID,
			Title:             rec.Title,
			Description:       rec.Description,
			Category:          string(rec.Category),
			AnnualSavingsUSD:  rec.EstimatedAnnualSavings,
			Priority:          string(rec.Priority),
			AffectedResources: rec.AffectedResources,
			Implemented:       rec.Implemented,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *Handler) implement(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.engine.Implement)
}

func (h *Handler) dismissRecommendation(w http.ResponseWriter, r *http.Request) {
	h.mutateByID(w, r, h.engine.DismissRecommendation)
}

func (h *Handler) budgets(w http.ResponseWriter, r *http.Request) {
	budgets := h.engine.Budgets()
	payload := make([]budgetPayload, 0, len(budgets))
	for _, b := range budgets {
		payload = append(payload, budgetPayload{
			Namespace:      b.Namespace,
			BudgetAmount:   b.BudgetAmount,
			SpentAmount:    b.SpentAmount,
			PercentageUsed: b.PercentageUsed,
			Status:         string(b.Status),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *Handler) policies(w http.ResponseWriter, r *http.Request) {
	policies := h.engine.Policies()
	payload := make([]policyPayload, 0, len(policies))
	for _, p := range policies {
		payload = append(payload, policyPayload{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			Status:         string(p.Status),
			Severity:       string(p.Severity),
			Namespaces:     p.Namespaces,
			ViolationCount: p.ViolationCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := h.engine.RefreshNow(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// mutateByID applies a user command to the entity named by the id
// query parameter. A false return means the id is unknown.
func (h *Handler) mutateByID(w http.ResponseWriter, r *http.Request, fn func(string) bool) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id required")
		return
	}
	if !fn(id) {
		respondError(w, http.StatusNotFound, "not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
