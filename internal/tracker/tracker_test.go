package tracker

import (
	"errors"
	"testing"
	"time"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

type fakeMessageRepo struct {
	messages map[string]*model.Message
	updated  []*model.Message
}

func newFakeMessageRepo(msgs ...*model.Message) *fakeMessageRepo {
	repo := &fakeMessageRepo{messages: map[string]*model.Message{}}
	for _, m := range msgs {
		repo.messages[m.ID] = m
	}
	return repo
}

func (f *fakeMessageRepo) GetByID(id string) (*model.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, appErrors.NewMessageNotFound(id)
	}
	return m, nil
}

func (f *fakeMessageRepo) UpdateDeliveryState(m *model.Message) error {
	f.updated = append(f.updated, m)
	return nil
}

func (f *fakeMessageRepo) CreateBatch([]*model.Message) error { return nil }
func (f *fakeMessageRepo) ListScheduled(int, time.Time) ([]*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageRepo) ListDue(int, time.Time, []string) ([]*model.Message, error) {
	return nil, nil
}
func (f *fakeMessageRepo) MarkSent(string, string) error                        { return nil }
func (f *fakeMessageRepo) MarkFailed(string, model.MessageStatus, string) error { return nil }
func (f *fakeMessageRepo) CampaignsWithDue(time.Time) ([]int, error)            { return nil, nil }

type fakeCampaignRepo struct {
	campaign *model.Campaign
	saved    []model.EmailMetrics
}

func (f *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return f.campaign, nil
}

func (f *fakeCampaignRepo) UpdateMetrics(id int, metrics model.EmailMetrics) error {
	f.saved = append(f.saved, metrics)
	f.campaign.EmailMetrics = metrics
	return nil
}

func (f *fakeCampaignRepo) UpdateStatus(int, string) error { return nil }

func testMessage(id string) *model.Message {
	return &model.Message{ID: id, CampaignID: 7, LeadID: 3, Channel: model.ChannelEmail, Status: model.StatusSent}
}

func newTestTracker(msgs *fakeMessageRepo, campaigns *fakeCampaignRepo) *Tracker {
	return &Tracker{Messages: msgs, Campaigns: campaigns}
}

func TestProcessBounceEvent(t *testing.T) {
	msg := testMessage("msg-1")
	msgs := newFakeMessageRepo(msg)
	campaigns := &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}}
	tr := newTestTracker(msgs, campaigns)

	processed, dropped := tr.ProcessEvents([]Event{{
		Event:      "bounce",
		Timestamp:  1767625200,
		CustomArgs: map[string]string{"message_id": "msg-1", "campaign_id": "7"},
		Reason:     "550 user unknown",
		SGEventID:  "ev-1",
	}})

	if processed != 1 || dropped != 0 {
		t.Fatalf("processed=%d dropped=%d, want 1/0", processed, dropped)
	}
	if msg.Status != model.StatusBounced {
		t.Errorf("status = %s, want bounced", msg.Status)
	}
	if msg.BouncedAt == nil || !msg.BouncedAt.Equal(time.Unix(1767625200, 0).UTC()) {
		t.Errorf("bounced_at = %v", msg.BouncedAt)
	}
	if msg.SendError != "550 user unknown" {
		t.Errorf("send_error = %q", msg.SendError)
	}
	if len(msg.TrackingEvents) != 1 || msg.TrackingEvents[0].Event != "bounce" {
		t.Fatalf("tracking events = %+v, want one bounce entry", msg.TrackingEvents)
	}
	if msg.TrackingEvents[0].Reason != "550 user unknown" {
		t.Errorf("tracking reason = %q", msg.TrackingEvents[0].Reason)
	}
	if len(msgs.updated) != 1 {
		t.Errorf("message persisted %d times, want 1", len(msgs.updated))
	}
	if campaigns.campaign.EmailMetrics.Bounced != 1 {
		t.Errorf("campaign bounced = %d, want 1", campaigns.campaign.EmailMetrics.Bounced)
	}
}

func TestProcessBounceDefaultReason(t *testing.T) {
	msg := testMessage("msg-1")
	tr := newTestTracker(newFakeMessageRepo(msg), &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}})

	tr.ProcessEvents([]Event{{Event: "bounce", MessageID: "msg-1"}})

	if msg.SendError != "email bounced" {
		t.Errorf("send_error = %q, want default", msg.SendError)
	}
}

func TestProcessDeliveredUpdatesRates(t *testing.T) {
	msg := testMessage("msg-1")
	campaigns := &fakeCampaignRepo{campaign: &model.Campaign{
		ID:           7,
		EmailMetrics: model.EmailMetrics{Delivered: 2, Opened: 1, Clicked: 1},
	}}
	tr := newTestTracker(newFakeMessageRepo(msg), campaigns)

	processed, _ := tr.ProcessEvents([]Event{{Event: "delivered", MessageID: "msg-1", Timestamp: 100}})
	if processed != 1 {
		t.Fatal("delivered event dropped")
	}
	if msg.Status != model.StatusDelivered || msg.DeliveredAt == nil {
		t.Errorf("status=%s delivered_at=%v", msg.Status, msg.DeliveredAt)
	}

	m := campaigns.campaign.EmailMetrics
	if m.Delivered != 3 {
		t.Errorf("delivered = %d, want 3", m.Delivered)
	}
	if m.OpenRate != 33.33 {
		t.Errorf("open_rate = %v, want 33.33", m.OpenRate)
	}
	if m.ClickRate != 33.33 {
		t.Errorf("click_rate = %v, want 33.33", m.ClickRate)
	}
}

func TestProcessOpenTouchesTimestampOnly(t *testing.T) {
	msg := testMessage("msg-1")
	msg.Status = model.StatusDelivered
	tr := newTestTracker(newFakeMessageRepo(msg), &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}})

	tr.ProcessEvents([]Event{{Event: "open", MessageID: "msg-1", Timestamp: 200, IP: "10.0.0.1"}})

	if msg.Status != model.StatusDelivered {
		t.Errorf("open changed status to %s", msg.Status)
	}
	if msg.OpenedAt == nil {
		t.Error("opened_at not set")
	}
	if msg.TrackingEvents[0].IP != "10.0.0.1" {
		t.Errorf("tracking ip = %q", msg.TrackingEvents[0].IP)
	}
}

func TestProcessEventsCountsDrops(t *testing.T) {
	tr := newTestTracker(newFakeMessageRepo(testMessage("msg-1")), &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}})

	processed, dropped := tr.ProcessEvents([]Event{
		{Event: "delivered", MessageID: "msg-1"},
		{Event: "delivered"},                          // no resolvable id
		{Event: "delivered", MessageID: "no-such-id"}, // unknown message
	})

	if processed != 1 || dropped != 2 {
		t.Errorf("processed=%d dropped=%d, want 1/2", processed, dropped)
	}
}

func TestProcessUnknownEventTypeStillRecorded(t *testing.T) {
	msg := testMessage("msg-1")
	campaigns := &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}}
	tr := newTestTracker(newFakeMessageRepo(msg), campaigns)

	processed, dropped := tr.ProcessEvents([]Event{{Event: "deferred", MessageID: "msg-1"}})

	if processed != 1 || dropped != 0 {
		t.Errorf("processed=%d dropped=%d", processed, dropped)
	}
	if len(msg.TrackingEvents) != 1 {
		t.Error("unknown event type not appended to tracking log")
	}
	if msg.Status != model.StatusSent {
		t.Errorf("unknown event changed status to %s", msg.Status)
	}
	if len(campaigns.saved) != 0 {
		t.Error("unknown event touched campaign metrics")
	}
}

func TestProcessEventResolvesCampaignFromMessage(t *testing.T) {
	msg := testMessage("msg-1")
	campaigns := &fakeCampaignRepo{campaign: &model.Campaign{ID: 7}}
	tr := newTestTracker(newFakeMessageRepo(msg), campaigns)

	// No campaign_id on the event; fall back to the stored message.
	tr.ProcessEvents([]Event{{Event: "unsubscribe", MessageID: "msg-1"}})

	if campaigns.campaign.EmailMetrics.Unsubscribed != 1 {
		t.Errorf("unsubscribed = %d, want 1", campaigns.campaign.EmailMetrics.Unsubscribed)
	}
	if msg.Status != model.StatusUnsubscribed || msg.UnsubscribedAt == nil {
		t.Errorf("status=%s unsubscribed_at=%v", msg.Status, msg.UnsubscribedAt)
	}
}

func TestProcessEventSurvivesMetricFailure(t *testing.T) {
	msg := testMessage("msg-1")
	// No campaign 7 in the repo: metric update fails, event still processes.
	tr := newTestTracker(newFakeMessageRepo(msg), &fakeCampaignRepo{})

	processed, dropped := tr.ProcessEvents([]Event{{Event: "delivered", MessageID: "msg-1"}})

	if processed != 1 || dropped != 0 {
		t.Errorf("processed=%d dropped=%d, metric failure must not drop the event", processed, dropped)
	}
	if msg.Status != model.StatusDelivered {
		t.Errorf("status = %s", msg.Status)
	}
}

var errStore = errors.New("store down")

type brokenUpdateRepo struct{ fakeMessageRepo }

func (b *brokenUpdateRepo) UpdateDeliveryState(*model.Message) error { return errStore }

func TestProcessEventDropsOnPersistFailure(t *testing.T) {
	repo := &brokenUpdateRepo{fakeMessageRepo: *newFakeMessageRepo(testMessage("msg-1"))}
	tr := newTestTracker(nil, nil)
	tr.Messages = repo
	tr.Campaigns = &fakeCampaignRepo{}

	processed, dropped := tr.ProcessEvents([]Event{{Event: "click", MessageID: "msg-1"}})
	if processed != 0 || dropped != 1 {
		t.Errorf("processed=%d dropped=%d, want 0/1", processed, dropped)
	}
}
