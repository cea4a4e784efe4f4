package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
)

const scheduledBy = "outreach-scheduler"

// Config carries the timing constraints the scheduler enforces.
type Config struct {
	DefaultTimezone   string
	BusinessStartHour int
	BusinessEndHour   int
	MinGap            time.Duration
	SlotHorizonDays   int
}

// Scheduler turns generated message sequences into persisted scheduled
// messages without exceeding per-channel daily limits.
type Scheduler struct {
	Messages repository.MessageRepositoryInterface
	Config   Config
	Now      func() time.Time
}

func NewScheduler(messages repository.MessageRepositoryInterface, cfg Config) *Scheduler {
	return &Scheduler{Messages: messages, Config: cfg, Now: time.Now}
}

// ChannelLog reports requested vs scheduled counts for one channel.
type ChannelLog struct {
	Channel   model.Channel `json:"channel"`
	Requested int           `json:"requested"`
	Scheduled int           `json:"scheduled"`
}

type ScheduleResult struct {
	CampaignID     int              `json:"campaign_id"`
	LeadID         int              `json:"lead_id"`
	Scheduled      []*model.Message `json:"scheduled_messages"`
	TotalScheduled int              `json:"total_scheduled"`
	Skipped        int              `json:"skipped"`
	Log            []ChannelLog     `json:"scheduling_log"`
}

// ScheduleOutreach assigns a send slot to every step of the sequences and
// persists the accepted steps as one batch. Steps with no slot inside the
// horizon are skipped, logged and counted; a store failure aborts the whole
// batch. Occupancy is private to this run: concurrent runs for the same
// campaign can double-book, which the job layer avoids by serializing runs
// per campaign.
func (s *Scheduler) ScheduleOutreach(campaign *model.Campaign, leadID int, sequences map[model.Channel][]model.SequenceStep, dailyLimits map[string]int) (*ScheduleResult, error) {
	loc := s.location(campaign)
	now := s.Now()

	occ, err := LoadOccupancy(s.Messages, campaign.ID, loc, now)
	if err != nil {
		return nil, err
	}

	finder := &SlotFinder{
		Loc:           loc,
		BusinessStart: s.Config.BusinessStartHour,
		BusinessEnd:   s.Config.BusinessEndHour,
		MinGap:        s.Config.MinGap,
		HorizonDays:   s.Config.SlotHorizonDays,
		Now:           s.Now,
	}

	result := &ScheduleResult{CampaignID: campaign.ID, LeadID: leadID, Scheduled: []*model.Message{}}

	for _, channel := range sortedChannels(sequences) {
		steps := sequences[channel]
		limit := dailyLimits[string(channel)]
		entry := ChannelLog{Channel: channel, Requested: len(steps)}

		if limit <= 0 {
			log.Warnf("no daily limit set for %s, skipping %d steps", channel, len(steps))
			result.Skipped += len(steps)
			result.Log = append(result.Log, entry)
			continue
		}

		for _, step := range steps {
			sendAt, err := finder.FindSlot(occ, channel, step.DayDelay, limit)
			if err != nil {
				log.Warnf("skipping sequence %d for lead %d: %v", step.SequenceNumber, leadID, err)
				result.Skipped++
				continue
			}

			result.Scheduled = append(result.Scheduled, &model.Message{
				ID:         uuid.NewString(),
				CampaignID: campaign.ID,
				LeadID:     leadID,
				Channel:    channel,
				Direction:  "outbound",
				Status:     model.StatusScheduled,
				SendAt:     sendAt,
				Subject:    step.Subject,
				Content:    step.Content,
				Metadata: model.MessageMetadata{
					SequenceNumber: step.SequenceNumber,
					DayDelay:       step.DayDelay,
					ScheduledBy:    scheduledBy,
				},
			})
			entry.Scheduled++
		}

		result.Log = append(result.Log, entry)
	}

	if err := s.Messages.CreateBatch(result.Scheduled); err != nil {
		return nil, fmt.Errorf("materialize %d messages for campaign %d: %w",
			len(result.Scheduled), campaign.ID, err)
	}
	result.TotalScheduled = len(result.Scheduled)

	log.Infof("scheduled %d messages for lead %d (skipped %d): %+v",
		result.TotalScheduled, leadID, result.Skipped, result.Log)
	return result, nil
}

// Availability reports per-date/per-channel free capacity for the next
// daysAhead days.
func (s *Scheduler) Availability(campaign *model.Campaign, dailyLimits map[string]int, daysAhead int) (map[string]map[string]ChannelAvailability, error) {
	loc := s.location(campaign)
	now := s.Now()

	occ, err := LoadOccupancy(s.Messages, campaign.ID, loc, now)
	if err != nil {
		return nil, err
	}
	return occ.Availability(dailyLimits, daysAhead, loc, now), nil
}

func (s *Scheduler) location(campaign *model.Campaign) *time.Location {
	tz := campaign.Timezone
	if tz == "" {
		tz = s.Config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warnf("invalid timezone %q for campaign %d, using UTC", tz, campaign.ID)
		return time.UTC
	}
	return loc
}

func sortedChannels(sequences map[model.Channel][]model.SequenceStep) []model.Channel {
	channels := make([]model.Channel, 0, len(sequences))
	for ch := range sequences {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}
