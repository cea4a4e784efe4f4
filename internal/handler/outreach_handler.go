package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/queue"
	"github.com/nickgarreis/agentic-outreach-system/internal/service"
)

// OutreachHandler exposes the scheduling and delivery triggers. Scheduling
// runs inline; delivery is enqueued for the worker.
type OutreachHandler struct {
	Service *service.OutreachService
	Jobs    *queue.Publisher
}

// ScheduleOutreachHandler materializes a generated sequence for one lead.
func (h *OutreachHandler) ScheduleOutreachHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var payload struct {
		LeadID      int                                    `json:"lead_id"`
		Sequences   map[model.Channel][]model.SequenceStep `json:"sequences"`
		DailyLimits map[string]int                         `json:"daily_limits,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(payload.Sequences) == 0 {
		http.Error(w, "sequences are required", http.StatusBadRequest)
		return
	}

	result, err := h.Service.ScheduleOutreach(campaignID, payload.LeadID, payload.Sequences, payload.DailyLimits)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	availability, err := h.Service.Availability(campaignID, 7)
	if err != nil {
		log.WithError(err).Warn("failed to compute availability")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"result":       result,
		"availability": availability,
	})
}

// SendDueHandler enqueues a delivery job for the campaign's due messages.
func (h *OutreachHandler) SendDueHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var payload struct {
		MessageIDs []string `json:"message_ids,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	job := &queue.Job{
		JobType:    queue.JobSendEmail,
		CampaignID: campaignID,
		MessageIDs: payload.MessageIDs,
	}
	if err := h.Jobs.Publish(job); err != nil {
		http.Error(w, "failed to enqueue delivery job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"queued":      true,
		"campaign_id": campaignID,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var campaignNotFound *appErrors.ErrCampaignNotFound
	var leadNotFound *appErrors.ErrLeadNotFound
	if errors.As(err, &campaignNotFound) || errors.As(err, &leadNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
