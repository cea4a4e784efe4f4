package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nickgarreis/agentic-outreach-system/internal/delivery"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
	"github.com/nickgarreis/agentic-outreach-system/internal/schedule"
)

// OutreachService exposes the pipeline's two entry points: scheduling a
// generated sequence and delivering due messages.
type OutreachService struct {
	Campaigns repository.CampaignRepositoryInterface
	Leads     repository.LeadRepositoryInterface
	Messages  repository.MessageRepositoryInterface
	Scheduler *schedule.Scheduler
	Engine    *delivery.Engine
	Now       func() time.Time
}

func (s *OutreachService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ScheduleOutreach resolves a slot for every sequence step and materializes
// the accepted ones. Daily limits fall back to the campaign's configuration
// when the caller passes none.
func (s *OutreachService) ScheduleOutreach(campaignID, leadID int, sequences map[model.Channel][]model.SequenceStep, dailyLimits map[string]int) (*schedule.ScheduleResult, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if dailyLimits == nil {
		dailyLimits = campaign.DailyLimits
	}
	return s.Scheduler.ScheduleOutreach(campaign, leadID, sequences, dailyLimits)
}

// Availability reports free capacity per date and channel for the campaign.
func (s *OutreachService) Availability(campaignID int, daysAhead int) (map[string]map[string]schedule.ChannelAvailability, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	return s.Scheduler.Availability(campaign, campaign.DailyLimits, daysAhead)
}

// DeliveryResult is the operator-visible summary of one delivery pass.
type DeliveryResult struct {
	CampaignID int                      `json:"campaign_id"`
	Sent       int                      `json:"sent"`
	Failed     int                      `json:"failed"`
	Retried    int                      `json:"retried"`
	Skipped    int                      `json:"skipped"`
	Results    []delivery.MessageResult `json:"results"`
}

// SendDue delivers the campaign's due scheduled messages (or the explicit id
// subset), persists every status transition and runs the single retry pass
// over retryable failures.
func (s *OutreachService) SendDue(ctx context.Context, campaignID int, messageIDs []string) (*DeliveryResult, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	due, err := s.Messages.ListDue(campaignID, s.now(), messageIDs)
	if err != nil {
		return nil, err
	}

	result := &DeliveryResult{CampaignID: campaignID, Results: []delivery.MessageResult{}}

	// Only the email transport exists; other channels stay scheduled.
	emails := make([]*model.Message, 0, len(due))
	for _, m := range due {
		if m.Channel != model.ChannelEmail {
			log.Warnf("skipping due %s message %s: no %s transport", m.Channel, m.ID, m.Channel)
			result.Skipped++
			continue
		}
		emails = append(emails, m)
	}
	if len(emails) == 0 {
		return result, nil
	}

	opts := delivery.SendOptions{
		APIKey:         campaign.ProviderAPIKey,
		FromEmail:      campaign.SenderEmail,
		FromName:       campaign.SenderName,
		FooterEnabled:  campaign.FooterEnabled,
		FooterTemplate: campaign.FooterTemplate,
	}

	batch, err := s.Engine.SendBatch(ctx, emails, opts)
	if err != nil {
		return nil, err
	}

	// Persist the first pass. Retryable failures park as retry_pending until
	// the retry pass decides their final state.
	for _, r := range batch.Results {
		s.persistResult(r, true)
	}

	retry, err := s.Engine.RetrySend(ctx, emails, batch.Results, opts)
	if err != nil {
		return nil, err
	}
	result.Retried = retry.Retried

	final := map[string]delivery.MessageResult{}
	for _, r := range batch.Results {
		final[r.MessageID] = r
	}
	if retry.Batch != nil {
		for _, r := range retry.Batch.Results {
			s.persistResult(r, false)
			final[r.MessageID] = r
		}
	}

	for _, m := range emails {
		r, ok := final[m.ID]
		if !ok {
			continue
		}
		result.Results = append(result.Results, r)
		if r.Failed() {
			result.Failed++
		} else {
			result.Sent++
		}
	}

	log.Infof("delivery pass for campaign %d: %d sent, %d failed, %d retried, %d skipped",
		campaignID, result.Sent, result.Failed, result.Retried, result.Skipped)
	return result, nil
}

// persistResult applies one delivery outcome to the message record. Each call
// counts exactly one send attempt. firstPass parks retryable failures as
// retry_pending; the retry pass marks them terminally.
func (s *OutreachService) persistResult(r delivery.MessageResult, firstPass bool) {
	var err error
	switch {
	case !r.Failed():
		err = s.Messages.MarkSent(r.MessageID, r.ProviderMessageID)
	case firstPass && r.Retryable:
		err = s.Messages.MarkFailed(r.MessageID, model.StatusRetryPending, r.Error)
	default:
		err = s.Messages.MarkFailed(r.MessageID, model.StatusFailed, r.Error)
	}
	if err != nil {
		log.WithError(err).Errorf("failed to persist delivery result for message %s", r.MessageID)
	}
}
