package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(id int) (*model.Campaign, error)
	UpdateMetrics(id int, metrics model.EmailMetrics) error
	UpdateStatus(id int, status string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, name, status, timezone, daily_limits, sender_name, sender_email,
               footer_enabled, footer_template, provider_api_key, email_metrics,
               created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var (
		c          model.Campaign
		limitsRaw  []byte
		metricsRaw []byte
	)
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.Name, &c.Status, &c.Timezone, &limitsRaw, &c.SenderName, &c.SenderEmail,
		&c.FooterEnabled, &c.FooterTemplate, &c.ProviderAPIKey, &metricsRaw,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	c.DailyLimits = map[string]int{}
	if len(limitsRaw) > 0 {
		if err := json.Unmarshal(limitsRaw, &c.DailyLimits); err != nil {
			return nil, fmt.Errorf("decode daily_limits for campaign %d: %w", id, err)
		}
	}
	if len(metricsRaw) > 0 {
		if err := json.Unmarshal(metricsRaw, &c.EmailMetrics); err != nil {
			return nil, fmt.Errorf("decode email_metrics for campaign %d: %w", id, err)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateMetrics(id int, metrics model.EmailMetrics) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	query := `UPDATE campaigns SET email_metrics=$1, updated_at=$2 WHERE id=$3`
	_, err = r.DB.Exec(query, raw, time.Now(), id)
	return err
}

func (r *CampaignRepository) UpdateStatus(id int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), id)
	return err
}
