package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrLeadNotFound struct {
	LeadID int
}

func (e *ErrLeadNotFound) Error() string {
	return fmt.Sprintf("lead with ID %d not found", e.LeadID)
}

func NewLeadNotFound(id int) error {
	return &ErrLeadNotFound{LeadID: id}
}

type ErrMessageNotFound struct {
	MessageID string
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message with ID %s not found", e.MessageID)
}

func NewMessageNotFound(id string) error {
	return &ErrMessageNotFound{MessageID: id}
}

// ErrNoSlotAvailable reports an exhausted scheduling horizon for one step.
// Callers treat it as a skip, not a hard failure.
type ErrNoSlotAvailable struct {
	Channel     string
	HorizonDays int
}

func (e *ErrNoSlotAvailable) Error() string {
	return fmt.Sprintf("no %s slot available within %d days", e.Channel, e.HorizonDays)
}

func NewNoSlotAvailable(channel string, horizonDays int) error {
	return &ErrNoSlotAvailable{Channel: channel, HorizonDays: horizonDays}
}
