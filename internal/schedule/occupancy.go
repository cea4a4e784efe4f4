package schedule

import (
	"fmt"
	"time"

	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
)

const dateLayout = "2006-01-02"

type channelOccupancy struct {
	Count int
	Times []time.Time
}

// Occupancy maps campaign-local calendar date -> channel -> already-used send
// slots. It is private to one scheduling run and never shared across runs.
type Occupancy map[string]map[model.Channel]*channelOccupancy

// LoadOccupancy rebuilds the occupancy map from the campaign's persisted
// scheduled messages with send_at at or after now. A read error aborts the
// whole scheduling run.
func LoadOccupancy(repo repository.MessageRepositoryInterface, campaignID int, loc *time.Location, now time.Time) (Occupancy, error) {
	msgs, err := repo.ListScheduled(campaignID, now)
	if err != nil {
		return nil, fmt.Errorf("load schedule state for campaign %d: %w", campaignID, err)
	}

	occ := Occupancy{}
	for _, m := range msgs {
		occ.Add(m.Channel, m.SendAt, loc)
	}
	return occ, nil
}

func (o Occupancy) slot(date string, channel model.Channel) *channelOccupancy {
	day, ok := o[date]
	if !ok {
		day = map[model.Channel]*channelOccupancy{}
		o[date] = day
	}
	ch, ok := day[channel]
	if !ok {
		ch = &channelOccupancy{}
		day[channel] = ch
	}
	return ch
}

// Add records a send time so that later steps in the same run observe it.
func (o Occupancy) Add(channel model.Channel, sendAt time.Time, loc *time.Location) {
	ch := o.slot(sendAt.In(loc).Format(dateLayout), channel)
	ch.Count++
	ch.Times = append(ch.Times, sendAt)
}

// Used returns how many slots are taken on a date for a channel.
func (o Occupancy) Used(date string, channel model.Channel) int {
	if day, ok := o[date]; ok {
		if ch, ok := day[channel]; ok {
			return ch.Count
		}
	}
	return 0
}

// ChannelAvailability reports used/limit/free slots for one date and channel.
type ChannelAvailability struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Available int `json:"available"`
}

// Availability summarizes free capacity per date and channel for the next
// daysAhead days, starting today campaign-local.
func (o Occupancy) Availability(dailyLimits map[string]int, daysAhead int, loc *time.Location, now time.Time) map[string]map[string]ChannelAvailability {
	out := map[string]map[string]ChannelAvailability{}
	for i := 0; i < daysAhead; i++ {
		date := now.In(loc).AddDate(0, 0, i).Format(dateLayout)
		byChannel := map[string]ChannelAvailability{}
		for channel, limit := range dailyLimits {
			used := o.Used(date, model.Channel(channel))
			free := limit - used
			if free < 0 {
				free = 0
			}
			byChannel[channel] = ChannelAvailability{Used: used, Limit: limit, Available: free}
		}
		out[date] = byChannel
	}
	return out
}
