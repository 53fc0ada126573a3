// Package http exposes the device registry, preference settings and the
// operational sweep endpoints. Sweeps are triggered over HTTP (guarded by a
// shared secret) so schedulers outside the process can drive cadence.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"journal-notify/internal/delivery"
	"journal-notify/internal/domain"
	"journal-notify/internal/observability/metrics"
	"journal-notify/internal/observability/middleware"
	"journal-notify/internal/store"
)

// SweepFunc runs one background pass and returns its stats for the response
// body.
type SweepFunc func(ctx context.Context) (any, error)

// Deps collects everything the router serves. Sweeps maps the path suffix
// under /internal/sweep/ to the pass it triggers.
type Deps struct {
	Store    *store.Store
	Pipeline *delivery.Pipeline

	SweepSecret string
	CORSOrigins string

	Sweeps map[string]SweepFunc
}

func NewRouter(deps Deps) http.Handler {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(100, 1*time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(deps.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/devices/register", h.registerDevice)
		r.Post("/devices/unregister", h.unregisterDevice)
		r.Get("/users/{userID}/preferences", h.getPreferences)
		r.Put("/users/{userID}/preferences", h.putPreferences)
		r.Get("/users/{userID}/history", h.getHistory)
		r.Post("/notifications/send", h.sendNotification)
	})

	r.Route("/internal/sweep", func(r chi.Router) {
		r.Use(h.requireSweepSecret)
		r.Post("/{name}", h.runSweep)
	})

	return r
}

type handler struct {
	deps Deps
}

type registerDeviceRequest struct {
	UserID     string `json:"userId"`
	Token      string `json:"token"`
	Channel    string `json:"channel"`
	Platform   string `json:"platform"`
	Timezone   string `json:"timezone"`
	AppVersion string `json:"appVersion"`
}

func (h *handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	ch := domain.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if ch != domain.ChannelFCM && ch != domain.ChannelAPNs {
		http.Error(w, "invalid channel", http.StatusBadRequest)
		return
	}

	device := &domain.DeviceRegistration{
		UserID:           userID,
		Token:            token,
		Channel:          ch,
		Platform:         strings.ToLower(strings.TrimSpace(req.Platform)),
		Timezone:         req.Timezone,
		AppVersion:       req.AppVersion,
		LastRegisteredAt: time.Now().UTC(),
	}
	if err := h.deps.Store.Devices().Upsert(r.Context(), device); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(string(ch), device.Platform, "failure").Inc()
		slog.Error("device registration failed", "error", err, "request_id", reqID)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	metrics.RegistrationsTotal.WithLabelValues(string(ch), device.Platform, "registered").Inc()
	slog.Info("device registered",
		"user_id", userID, "channel", ch, "platform", device.Platform, "request_id", reqID)
	writeJSON(w, http.StatusOK, device)
}

type unregisterDeviceRequest struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// unregisterDevice removes a single token, or every token for a user when no
// token is given (logout-all).
func (h *handler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	var req unregisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var (
		removed int64
		err     error
	)
	switch {
	case strings.TrimSpace(req.Token) != "":
		removed, err = h.deps.Store.Devices().DeleteByToken(r.Context(), strings.TrimSpace(req.Token))
	case strings.TrimSpace(req.UserID) != "":
		var userID uuid.UUID
		userID, err = uuid.Parse(strings.TrimSpace(req.UserID))
		if err != nil {
			http.Error(w, "invalid userId", http.StatusBadRequest)
			return
		}
		removed, err = h.deps.Store.Devices().DeleteByUser(r.Context(), userID)
	default:
		http.Error(w, "token or userId required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "unregister failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

type preferencesResponse struct {
	UserID  string                           `json:"userId"`
	Enabled bool                             `json:"enabled"`
	PerType map[string]domain.TypePreference `json:"perType"`
}

func (h *handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid userID", http.StatusBadRequest)
		return
	}

	prefs, err := h.deps.Store.Preferences().Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// Never-saved users get the defaults.
			writeJSON(w, http.StatusOK, preferencesResponse{
				UserID:  userID.String(),
				Enabled: true,
				PerType: map[string]domain.TypePreference{},
			})
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	perType, err := prefs.TypePrefs()
	if err != nil {
		perType = map[string]domain.TypePreference{}
	}
	writeJSON(w, http.StatusOK, preferencesResponse{
		UserID:  userID.String(),
		Enabled: prefs.Enabled,
		PerType: perType,
	})
}

type putPreferencesRequest struct {
	Enabled bool                             `json:"enabled"`
	PerType map[string]domain.TypePreference `json:"perType"`
}

func (h *handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid userID", http.StatusBadRequest)
		return
	}
	var req putPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	for name := range req.PerType {
		if !validType(name) {
			http.Error(w, "unknown notification type: "+name, http.StatusBadRequest)
			return
		}
	}

	prefs := &domain.Preferences{UserID: userID, Enabled: req.Enabled}
	if req.PerType == nil {
		req.PerType = map[string]domain.TypePreference{}
	}
	if err := prefs.SetTypePrefs(req.PerType); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.deps.Store.Preferences().Upsert(r.Context(), prefs); err != nil {
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{
		UserID:  userID.String(),
		Enabled: req.Enabled,
		PerType: req.PerType,
	})
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid userID", http.StatusBadRequest)
		return
	}
	entries, err := h.deps.Store.History().RecentForUser(r.Context(), userID, 50)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type sendNotificationRequest struct {
	UserID string            `json:"userId"`
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type sendNotificationResponse struct {
	Success bool   `json:"success"`
	Channel string `json:"channel,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// sendNotification pushes an ad-hoc notification through the full pipeline;
// rate limits and preferences apply as they would for any engine-originated
// send.
func (h *handler) sendNotification(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	var req sendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}
	if !validType(req.Type) {
		http.Error(w, "unknown notification type", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Body == "" {
		http.Error(w, "title and body required", http.StatusBadRequest)
		return
	}

	res, err := h.deps.Pipeline.SendPush(r.Context(), userID, &domain.Notification{
		Type:  req.Type,
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	}, nil, delivery.Options{})
	if err != nil {
		slog.Error("ad-hoc send failed", "error", err, "user_id", userID, "request_id", reqID)
		http.Error(w, "send failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sendNotificationResponse{
		Success: res.Success,
		Channel: string(res.Channel),
		Reason:  string(res.Reason),
	})
}

func (h *handler) requireSweepSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deps.SweepSecret == "" || r.Header.Get("X-Sweep-Secret") != h.deps.SweepSecret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) runSweep(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sweep, ok := h.deps.Sweeps[name]
	if !ok {
		http.Error(w, "unknown sweep", http.StatusNotFound)
		return
	}

	reqID := middleware.RequestIDFromContext(r.Context())
	start := time.Now()
	stats, err := sweep(r.Context())
	if err != nil {
		slog.Error("sweep failed", "sweep", name, "error", err, "request_id", reqID)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	slog.Info("sweep completed",
		"sweep", name, "duration", time.Since(start).String(), "request_id", reqID)
	writeJSON(w, http.StatusOK, map[string]any{"sweep": name, "stats": stats})
}

func validType(t string) bool {
	switch t {
	case domain.TypeDailyReminder, domain.TypeStreakReminder, domain.TypeWeeklyReflection,
		domain.TypeWeeklyReport, domain.TypeWeeklyReminder:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func splitOrigins(raw string) []string {
	out := []string{}
	for _, o := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
