package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"credwatch/internal/model"
	"credwatch/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Alert rule CRUD

func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ListRules())
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.GetRule(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, err := h.store.GetRule(rule.ID); err == nil {
		writeError(w, http.StatusConflict, "Rule already exists")
		return
	}
	if !h.validateRule(w, rule) {
		return
	}
	if err := h.store.PutRule(rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.refreshRules()
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetRule(id); err != nil {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}

	var rule model.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.ID = id
	if !h.validateRule(w, rule) {
		return
	}
	if err := h.store.PutRule(rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.refreshRules()
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRule(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	h.refreshRules()
	w.WriteHeader(http.StatusNoContent)
}

// validateRule checks a single rule against the channels currently in
// the store, reporting every violation at once.
func (h *Handlers) validateRule(w http.ResponseWriter, rule model.AlertRule) bool {
	scratch := utils.EngineConfig{
		Rules:    []model.AlertRule{rule},
		Channels: h.store.ListChannels(),
	}
	return h.reportViolations(w, scratch.Validate())
}

// Notification channel CRUD

func (h *Handlers) GetChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ListChannels())
}

func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := h.store.GetChannel(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var channel model.NotificationChannel
	if err := json.NewDecoder(r.Body).Decode(&channel); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if _, err := h.store.GetChannel(channel.ID); err == nil {
		writeError(w, http.StatusConflict, "Channel already exists")
		return
	}
	if !h.validateChannel(w, channel) {
		return
	}
	if err := h.store.PutChannel(channel); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

func (h *Handlers) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetChannel(id); err != nil {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}

	var channel model.NotificationChannel
	if err := json.NewDecoder(r.Body).Decode(&channel); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	channel.ID = id
	if !h.validateChannel(w, channel) {
		return
	}
	if err := h.store.PutChannel(channel); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, rule := range h.store.ListRules() {
		for _, chID := range rule.NotificationChannelIDs {
			if chID == id {
				writeError(w, http.StatusConflict, "Channel is referenced by rule "+rule.ID)
				return
			}
		}
	}
	if err := h.store.DeleteChannel(id); err != nil {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) validateChannel(w http.ResponseWriter, channel model.NotificationChannel) bool {
	scratch := utils.EngineConfig{Channels: []model.NotificationChannel{channel}}
	return h.reportViolations(w, scratch.Validate())
}

// Auto-resolve rule CRUD

func (h *Handlers) GetAutoResolveRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ListAutoResolveRules())
}

func (h *Handlers) GetAutoResolveRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.GetAutoResolveRule(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Auto-resolve rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) CreateAutoResolveRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AutoResolveRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, err := h.store.GetAutoResolveRule(rule.ID); err == nil {
		writeError(w, http.StatusConflict, "Auto-resolve rule already exists")
		return
	}
	if !h.validateAutoResolveRule(w, rule) {
		return
	}
	if err := h.store.PutAutoResolveRule(rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handlers) UpdateAutoResolveRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetAutoResolveRule(id); err != nil {
		writeError(w, http.StatusNotFound, "Auto-resolve rule not found")
		return
	}

	var rule model.AutoResolveRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.ID = id
	if !h.validateAutoResolveRule(w, rule) {
		return
	}
	if err := h.store.PutAutoResolveRule(rule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) DeleteAutoResolveRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAutoResolveRule(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, "Auto-resolve rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) validateAutoResolveRule(w http.ResponseWriter, rule model.AutoResolveRule) bool {
	scratch := utils.EngineConfig{AutoResolve: []model.AutoResolveRule{rule}}
	return h.reportViolations(w, scratch.Validate())
}

func (h *Handlers) reportViolations(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"violations": verr.Violations,
		})
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}
