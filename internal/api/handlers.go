// Package api exposes the engine over HTTP: event submission,
// alert/rule/channel management, the dashboard and a live alert stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"credwatch/internal/dashboard"
	"credwatch/internal/intake"
	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"
	"credwatch/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const casRetries = 3

// Handlers carries the engine components the HTTP surface talks to.
type Handlers struct {
	store       store.Store
	intake      *intake.Intake
	aggregator  *dashboard.Aggregator
	config       *utils.ConfigManager
	applyConfig  func(*utils.EngineConfig) error
	refreshRules func()
	metrics      *metrics.Metrics
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
}

func NewHandlers(st store.Store, in *intake.Intake, agg *dashboard.Aggregator, cfg *utils.ConfigManager, applyConfig func(*utils.EngineConfig) error, refreshRules func(), m *metrics.Metrics, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:        st,
		intake:       in,
		aggregator:   agg,
		config:       cfg,
		applyConfig:  applyConfig,
		refreshRules: refreshRules,
		metrics:      m,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Event handlers

func (h *Handlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event model.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.intake.Submit(r.Context(), &event); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"accepted":   false,
				"violations": verr.Violations,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"id":       event.ID,
	})
}

func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventFilter{
		Type:               q.Get("type"),
		Source:             q.Get("source"),
		Severity:           model.Severity(q.Get("severity")),
		RelatedUserAddress: q.Get("related_user_address"),
		RelatedIP:          q.Get("related_ip"),
		RelatedSessionID:   q.Get("related_session_id"),
	}
	var ok bool
	if filter.From, filter.To, ok = parseTimeRange(w, q.Get("from"), q.Get("to")); !ok {
		return
	}
	filter.Page, filter.Limit = parsePagination(q.Get("page"), q.Get("limit"))

	events, total, err := h.store.ListEvents(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.NewPage(events, total, filter.Page, filter.Limit))
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	event, err := h.store.GetEvent(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Alert handlers

func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AlertFilter{
		Severity: model.Severity(q.Get("severity")),
		Status:   model.AlertStatus(q.Get("status")),
		Type:     q.Get("type"),
		RuleID:   q.Get("rule_id"),
		GroupKey: q.Get("group_key"),
	}
	var ok bool
	if filter.From, filter.To, ok = parseTimeRange(w, q.Get("from"), q.Get("to")); !ok {
		return
	}
	filter.Page, filter.Limit = parsePagination(q.Get("page"), q.Get("limit"))

	alerts, total, err := h.store.ListAlerts(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.NewPage(alerts, total, filter.Page, filter.Limit))
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := h.store.GetAlert(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type alertUpdateRequest struct {
	Status model.AlertStatus `json:"status"`
	Notes  string            `json:"notes"`
	Actor  string            `json:"actor"`
}

// UpdateAlert handles manual acknowledge/resolve. The write goes through
// the store's compare-and-swap; a concurrent evaluator update is absorbed
// by re-reading and re-applying the operator's intent.
func (h *Handlers) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req alertUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != model.AlertStatusAcknowledged && req.Status != model.AlertStatusResolved {
		writeError(w, http.StatusBadRequest, "Status must be acknowledged or resolved")
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "operator"
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		alert, err := h.store.GetAlert(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		if alert.Terminal() {
			writeError(w, http.StatusConflict, "Alert is already resolved")
			return
		}
		if req.Status == model.AlertStatusAcknowledged && alert.Status != model.AlertStatusOpen {
			writeError(w, http.StatusConflict, "Only open alerts can be acknowledged")
			return
		}

		alert.Status = req.Status
		action := string(req.Status)
		if req.Status == model.AlertStatusResolved {
			now := time.Now()
			alert.ResolvedAt = &now
			alert.ResolutionNotes = req.Notes
			action = "resolved"
		}

		err = h.store.UpdateAlert(alert)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if req.Status == model.AlertStatusResolved {
			h.metrics.AlertsResolved.WithLabelValues("manual").Inc()
		}
		updated, aerr := h.store.AppendAlertAction(id, model.AlertAction{
			ID:        uuid.NewString(),
			Action:    action,
			Actor:     actor,
			Notes:     req.Notes,
			Timestamp: time.Now(),
		})
		if aerr != nil {
			updated = alert
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	writeError(w, http.StatusConflict, "Alert is being updated concurrently, retry")
}

type alertActionRequest struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes"`
}

func (h *Handlers) PostAlertAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "Missing action")
		return
	}

	alert, err := h.store.AppendAlertAction(id, model.AlertAction{
		ID:        uuid.NewString(),
		Action:    req.Action,
		Actor:     req.Actor,
		Notes:     req.Notes,
		Timestamp: time.Now(),
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// StreamAlerts streams live alert writes over a websocket, filtered by
// severity and type query params.
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &store.AlertSubscriber{
		ID:      uuid.NewString(),
		Channel: make(chan model.Alert, 100),
		Filter: store.SubscriberFilter{
			Severity: model.Severity(r.URL.Query().Get("severity")),
			Type:     r.URL.Query().Get("type"),
		},
	}
	h.store.SubscribeAlerts(sub)
	defer h.store.UnsubscribeAlerts(sub)

	// Ping keepalive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case alert, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// Dashboard handler

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseTimeRange(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.aggregator.Summary(from, to))
}

// Config handlers

func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	config := *h.config.Current()
	// The store is authoritative for CRUD-managed entities.
	config.Rules = h.store.ListRules()
	config.Channels = h.store.ListChannels()
	config.AutoResolve = h.store.ListAutoResolveRules()
	writeJSON(w, http.StatusOK, config)
}

func (h *Handlers) PutConfig(w http.ResponseWriter, r *http.Request) {
	var config utils.EngineConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.applyConfig(&config); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"violations": verr.Violations,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, config)
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func parsePagination(pageStr, limitStr string) (int, int) {
	page, _ := strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(limitStr)
	if limit < 1 {
		limit = 25
	}
	if limit > 1000 {
		limit = 1000
	}
	return page, limit
}

func parseTimeRange(w http.ResponseWriter, fromStr, toStr string) (time.Time, time.Time, bool) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid from time: %v", err))
			return from, to, false
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid to time: %v", err))
			return from, to, false
		}
	}
	return from, to, true
}
