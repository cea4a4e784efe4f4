package tracker

import (
	"errors"
	"math"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
)

// Event is one asynchronous provider callback. Identifiers arrive either at
// the root or inside custom_args depending on provider version.
type Event struct {
	Event      string            `json:"event"`
	Timestamp  int64             `json:"timestamp"`
	MessageID  string            `json:"message_id"`
	CampaignID string            `json:"campaign_id"`
	LeadID     string            `json:"lead_id"`
	CustomArgs map[string]string `json:"custom_args"`
	URL        string            `json:"url"`
	Reason     string            `json:"reason"`
	Response   string            `json:"response"`
	IP         string            `json:"ip"`
	UserAgent  string            `json:"useragent"`
	SGEventID  string            `json:"sg_event_id"`
	SGMessage  string            `json:"sg_message_id"`
}

func (e *Event) messageID() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	return e.CustomArgs["message_id"]
}

func (e *Event) campaignID() int {
	raw := e.CampaignID
	if raw == "" {
		raw = e.CustomArgs["campaign_id"]
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return id
}

// Tracker ingests provider callbacks and updates message tracking state and
// campaign aggregate metrics.
type Tracker struct {
	Messages  repository.MessageRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
}

// ProcessEvents handles a callback batch. Events that cannot be processed are
// dropped with a warning; the caller always acknowledges the batch so the
// provider does not retry-storm.
func (t *Tracker) ProcessEvents(events []Event) (processed, dropped int) {
	for i := range events {
		if err := t.processEvent(&events[i]); err != nil {
			log.WithError(err).Warnf("dropping %s event", events[i].Event)
			dropped++
			continue
		}
		processed++
	}
	log.Infof("processed %d provider events, dropped %d", processed, dropped)
	return processed, dropped
}

func (t *Tracker) processEvent(ev *Event) error {
	msgID := ev.messageID()
	if msgID == "" {
		return errors.New("event carries no resolvable message_id")
	}

	msg, err := t.Messages.GetByID(msgID)
	if err != nil {
		return err
	}

	eventTime := time.Unix(ev.Timestamp, 0).UTC()
	msg.TrackingEvents = append(msg.TrackingEvents, model.TrackingEvent{
		Event:             ev.Event,
		Timestamp:         eventTime,
		URL:               ev.URL,
		Reason:            ev.Reason,
		Response:          ev.Response,
		IP:                ev.IP,
		UserAgent:         ev.UserAgent,
		ProviderEventID:   ev.SGEventID,
		ProviderMessageID: ev.SGMessage,
	})

	switch ev.Event {
	case "delivered":
		msg.DeliveredAt = &eventTime
		msg.Status = model.StatusDelivered
	case "open":
		msg.OpenedAt = &eventTime
	case "click":
		msg.ClickedAt = &eventTime
	case "bounce":
		msg.BouncedAt = &eventTime
		msg.Status = model.StatusBounced
		if ev.Reason != "" {
			msg.SendError = ev.Reason
		} else {
			msg.SendError = "email bounced"
		}
	case "unsubscribe":
		msg.UnsubscribedAt = &eventTime
		msg.Status = model.StatusUnsubscribed
	}

	if err := t.Messages.UpdateDeliveryState(msg); err != nil {
		return err
	}

	campaignID := ev.campaignID()
	if campaignID == 0 {
		campaignID = msg.CampaignID
	}
	if campaignID != 0 {
		if err := t.updateCampaignMetrics(campaignID, ev.Event); err != nil {
			// Metric drift is tolerable; the tracking log already holds truth.
			log.WithError(err).Warnf("failed to update metrics for campaign %d", campaignID)
		}
	}

	log.Debugf("processed %s event for message %s", ev.Event, msgID)
	return nil
}

// metricForEvent maps provider event types to campaign counters.
var metricForEvent = map[string]string{
	"processed":   "sent",
	"delivered":   "delivered",
	"open":        "opened",
	"click":       "clicked",
	"bounce":      "bounced",
	"unsubscribe": "unsubscribed",
}

func (t *Tracker) updateCampaignMetrics(campaignID int, eventType string) error {
	metric, ok := metricForEvent[eventType]
	if !ok {
		return nil
	}

	campaign, err := t.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}

	m := campaign.EmailMetrics
	switch metric {
	case "sent":
		m.Sent++
	case "delivered":
		m.Delivered++
	case "opened":
		m.Opened++
	case "clicked":
		m.Clicked++
	case "bounced":
		m.Bounced++
	case "unsubscribed":
		m.Unsubscribed++
	}

	if m.Delivered > 0 {
		m.OpenRate = roundRate(float64(m.Opened) / float64(m.Delivered) * 100)
		m.ClickRate = roundRate(float64(m.Clicked) / float64(m.Delivered) * 100)
	}

	return t.Campaigns.UpdateMetrics(campaignID, m)
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}
