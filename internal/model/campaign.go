package model

import "time"

// EmailMetrics is the campaign-level aggregate updated by the delivery event
// tracker. Rates are percentages over delivered.
type EmailMetrics struct {
	Sent         int     `json:"sent"`
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Bounced      int     `json:"bounced"`
	Unsubscribed int     `json:"unsubscribed"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

type Campaign struct {
	ID             int            `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Status         string         `db:"status" json:"status"`
	Timezone       string         `db:"timezone" json:"timezone"`
	DailyLimits    map[string]int `db:"daily_limits" json:"daily_limits"`
	SenderName     string         `db:"sender_name" json:"sender_name"`
	SenderEmail    string         `db:"sender_email" json:"sender_email"`
	FooterEnabled  bool           `db:"footer_enabled" json:"footer_enabled"`
	FooterTemplate string         `db:"footer_template" json:"footer_template,omitempty"`
	ProviderAPIKey string         `db:"provider_api_key" json:"-"`
	EmailMetrics   EmailMetrics   `db:"email_metrics" json:"email_metrics"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
