package model

import "time"

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
)

type MessageStatus string

const (
	StatusScheduled    MessageStatus = "scheduled"
	StatusSent         MessageStatus = "sent"
	StatusDelivered    MessageStatus = "delivered"
	StatusBounced      MessageStatus = "bounced"
	StatusUnsubscribed MessageStatus = "unsubscribed"
	StatusFailed       MessageStatus = "failed"
	StatusRetryPending MessageStatus = "retry_pending"
	StatusCancelled    MessageStatus = "cancelled"
)

// MessageMetadata records how a message came to be scheduled.
type MessageMetadata struct {
	SequenceNumber int    `json:"sequence_number"`
	DayDelay       int    `json:"day_delay"`
	ScheduledBy    string `json:"scheduled_by"`
}

// TrackingEvent is one normalized provider callback appended to a message's
// tracking log. The log is append-only; no transition removes entries.
type TrackingEvent struct {
	Event             string    `json:"event"`
	Timestamp         time.Time `json:"timestamp"`
	URL               string    `json:"url,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Response          string    `json:"response,omitempty"`
	IP                string    `json:"ip,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	ProviderEventID   string    `json:"provider_event_id,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
}

type Message struct {
	ID                string          `db:"id" json:"id"`
	CampaignID        int             `db:"campaign_id" json:"campaign_id"`
	LeadID            int             `db:"lead_id" json:"lead_id"`
	Channel           Channel         `db:"channel" json:"channel"`
	Direction         string          `db:"direction" json:"direction"`
	Status            MessageStatus   `db:"status" json:"status"`
	SendAt            time.Time       `db:"send_at" json:"send_at"`
	Subject           string          `db:"subject" json:"subject,omitempty"`
	Content           string          `db:"content" json:"content"`
	Metadata          MessageMetadata `db:"metadata" json:"metadata"`
	SendAttempts      int             `db:"send_attempts" json:"send_attempts"`
	SendError         string          `db:"send_error" json:"send_error,omitempty"`
	ProviderMessageID string          `db:"provider_message_id" json:"provider_message_id,omitempty"`
	TrackingEvents    []TrackingEvent `db:"tracking_events" json:"tracking_events"`
	SentAt            *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt          *time.Time      `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt         *time.Time      `db:"clicked_at" json:"clicked_at,omitempty"`
	BouncedAt         *time.Time      `db:"bounced_at" json:"bounced_at,omitempty"`
	UnsubscribedAt    *time.Time      `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// SequenceStep is one planned message of a generated outreach sequence,
// before scheduling assigns it a concrete send time.
type SequenceStep struct {
	SequenceNumber int    `json:"sequence_number"`
	DayDelay       int    `json:"day_delay"`
	Subject        string `json:"subject,omitempty"`
	Content        string `json:"content"`
	Type           string `json:"type,omitempty"`
}
