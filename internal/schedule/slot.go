package schedule

import (
	"time"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

// SlotFinder computes the earliest legal send time for one sequence step
// under the campaign's capacity, spacing and business-hours constraints.
type SlotFinder struct {
	Loc           *time.Location
	BusinessStart int // hour, campaign-local
	BusinessEnd   int // hour, campaign-local, exclusive
	MinGap        time.Duration
	HorizonDays   int
	Now           func() time.Time
}

// FindSlot returns the earliest feasible UTC send time for a step with the
// given day delay, or ErrNoSlotAvailable when the horizon is exhausted. On
// success the occupancy map is updated in place so later steps in the same
// run see the booking. Slots are always the earliest feasible time; there is
// no randomization or load balancing across hours.
func (f *SlotFinder) FindSlot(occ Occupancy, channel model.Channel, dayDelay, dailyLimit int) (time.Time, error) {
	now := f.Now().In(f.Loc)
	today := now.Format(dateLayout)
	target := now.AddDate(0, 0, dayDelay)

	for checked := 0; checked < f.HorizonDays; checked++ {
		day := target.AddDate(0, 0, checked)
		date := day.Format(dateLayout)

		used := occ.slot(date, channel)
		if used.Count >= dailyLimit {
			continue
		}

		start := time.Date(day.Year(), day.Month(), day.Day(), f.BusinessStart, 0, 0, 0, f.Loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), f.BusinessEnd, 0, 0, 0, f.Loc)

		// Same-day scheduling after the window opened starts one minute out.
		if date == today && now.After(start) {
			start = now.Add(time.Minute)
		}

		var slot time.Time
		if len(used.Times) == 0 {
			if !start.Before(end) {
				continue
			}
			slot = start
		} else {
			slot = latest(used.Times).In(f.Loc).Add(f.MinGap)
			if slot.Before(now) {
				slot = now.Add(time.Minute)
			}
			if !slot.Before(end) {
				continue
			}
		}

		slot = slot.UTC()
		occ.Add(channel, slot, f.Loc)
		return slot, nil
	}

	return time.Time{}, appErrors.NewNoSlotAvailable(string(channel), f.HorizonDays)
}

func latest(times []time.Time) time.Time {
	max := times[0]
	for _, t := range times[1:] {
		if t.After(max) {
			max = t
		}
	}
	return max
}
