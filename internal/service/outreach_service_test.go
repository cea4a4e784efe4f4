package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/nickgarreis/agentic-outreach-system/internal/delivery"
	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/schedule"
)

func scheduleTestScheduler(repo *stubMessageRepo, now time.Time) *schedule.Scheduler {
	s := schedule.NewScheduler(repo, schedule.Config{
		DefaultTimezone:   "UTC",
		BusinessStartHour: 9,
		BusinessEndHour:   17,
		MinGap:            5 * time.Minute,
		SlotHorizonDays:   14,
	})
	s.Now = func() time.Time { return now }
	return s
}

type stubCampaignRepo struct {
	campaign *model.Campaign
}

func (s *stubCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return s.campaign, nil
}

func (s *stubCampaignRepo) UpdateMetrics(int, model.EmailMetrics) error { return nil }
func (s *stubCampaignRepo) UpdateStatus(int, string) error              { return nil }

type stubLeadRepo struct {
	leads map[int]*model.Lead
}

func (s *stubLeadRepo) GetByID(id int) (*model.Lead, error) {
	l, ok := s.leads[id]
	if !ok {
		return nil, appErrors.NewLeadNotFound(id)
	}
	return l, nil
}

// transition records one persisted status change for assertions.
type transition struct {
	status    model.MessageStatus
	provider  string
	sendError string
}

type stubMessageRepo struct {
	due         []*model.Message
	transitions map[string][]transition
}

func newStubMessageRepo(due ...*model.Message) *stubMessageRepo {
	return &stubMessageRepo{due: due, transitions: map[string][]transition{}}
}

func (s *stubMessageRepo) ListDue(int, time.Time, []string) ([]*model.Message, error) {
	return s.due, nil
}

func (s *stubMessageRepo) MarkSent(id, providerMessageID string) error {
	s.transitions[id] = append(s.transitions[id], transition{status: model.StatusSent, provider: providerMessageID})
	return nil
}

func (s *stubMessageRepo) MarkFailed(id string, status model.MessageStatus, sendError string) error {
	s.transitions[id] = append(s.transitions[id], transition{status: status, sendError: sendError})
	return nil
}

func (s *stubMessageRepo) CreateBatch([]*model.Message) error              { return nil }
func (s *stubMessageRepo) GetByID(string) (*model.Message, error)          { return nil, nil }
func (s *stubMessageRepo) UpdateDeliveryState(*model.Message) error        { return nil }
func (s *stubMessageRepo) CampaignsWithDue(time.Time) ([]int, error)       { return nil, nil }
func (s *stubMessageRepo) ListScheduled(int, time.Time) ([]*model.Message, error) {
	return nil, nil
}

// scriptedClient returns the scripted responses in order, then keeps repeating
// the last one.
type scriptedClient struct {
	mu        sync.Mutex
	calls     int
	responses []*rest.Response
}

func (c *scriptedClient) Send(m *mail.SGMailV3) (*rest.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i], nil
}

func accepted() *rest.Response {
	return &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"prov-abc"}},
	}
}

func rateLimited() *rest.Response {
	return &rest.Response{StatusCode: 429, Body: "too many requests"}
}

func newTestService(client *scriptedClient, repo *stubMessageRepo) *OutreachService {
	pool := delivery.NewClientPool(2, time.Minute)
	pool.Factory = func(string) delivery.ProviderClient { return client }
	leads := &stubLeadRepo{leads: map[int]*model.Lead{
		3: {ID: 3, Email: "bob@example.com", FirstName: "Bob"},
	}}
	engine := delivery.NewEngine(leads, pool, 100, time.Millisecond, time.Millisecond)
	return &OutreachService{
		Campaigns: &stubCampaignRepo{campaign: &model.Campaign{
			ID:             7,
			SenderName:     "Acme",
			SenderEmail:    "sales@acme.test",
			ProviderAPIKey: "SG.test-key",
		}},
		Leads:    leads,
		Messages: repo,
		Engine:   engine,
		Now:      func() time.Time { return time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC) },
	}
}

func dueEmail(id string) *model.Message {
	return &model.Message{
		ID: id, CampaignID: 7, LeadID: 3, Channel: model.ChannelEmail,
		Status: model.StatusScheduled, Subject: "Hello", Content: "Hi {{first_name}}",
	}
}

func TestSendDueSuccess(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{accepted()}}
	repo := newStubMessageRepo(dueEmail("m1"))
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 1 || result.Failed != 0 || result.Retried != 0 {
		t.Fatalf("sent=%d failed=%d retried=%d, want 1/0/0", result.Sent, result.Failed, result.Retried)
	}
	if client.calls != 1 {
		t.Errorf("provider called %d times, want 1", client.calls)
	}

	trs := repo.transitions["m1"]
	if len(trs) != 1 || trs[0].status != model.StatusSent {
		t.Fatalf("transitions = %+v, want single sent", trs)
	}
	if trs[0].provider != "prov-abc" {
		t.Errorf("provider message id = %q", trs[0].provider)
	}
}

func TestSendDuePermanentFailure(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{
		{StatusCode: 401, Body: "invalid api key"},
	}}
	repo := newStubMessageRepo(dueEmail("m1"))
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Retried != 0 {
		t.Fatalf("failed=%d retried=%d, want 1/0", result.Failed, result.Retried)
	}
	if client.calls != 1 {
		t.Errorf("auth failure retried: %d provider calls", client.calls)
	}
	trs := repo.transitions["m1"]
	if len(trs) != 1 || trs[0].status != model.StatusFailed {
		t.Fatalf("transitions = %+v, want single failed", trs)
	}
	if result.Results[0].Category != delivery.CategoryAuthentication {
		t.Errorf("category = %s", result.Results[0].Category)
	}
}

func TestSendDueRetryableFailureExhaustsRetry(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{rateLimited()}}
	repo := newStubMessageRepo(dueEmail("m1"))
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Retried != 1 {
		t.Fatalf("failed=%d retried=%d, want 1/1", result.Failed, result.Retried)
	}
	if client.calls != 2 {
		t.Errorf("provider called %d times, want 2 (initial + one retry)", client.calls)
	}

	trs := repo.transitions["m1"]
	if len(trs) != 2 {
		t.Fatalf("transitions = %+v, want retry_pending then failed", trs)
	}
	if trs[0].status != model.StatusRetryPending || trs[1].status != model.StatusFailed {
		t.Errorf("transition order = %s, %s", trs[0].status, trs[1].status)
	}
}

func TestSendDueRetryRecovers(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{rateLimited(), accepted()}}
	repo := newStubMessageRepo(dueEmail("m1"))
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 1 || result.Failed != 0 || result.Retried != 1 {
		t.Fatalf("sent=%d failed=%d retried=%d, want 1/0/1", result.Sent, result.Failed, result.Retried)
	}

	trs := repo.transitions["m1"]
	if len(trs) != 2 {
		t.Fatalf("transitions = %+v", trs)
	}
	if trs[0].status != model.StatusRetryPending || trs[1].status != model.StatusSent {
		t.Errorf("transition order = %s, %s", trs[0].status, trs[1].status)
	}
}

func TestSendDueSkipsNonEmailChannels(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{accepted()}}
	linkedin := dueEmail("m2")
	linkedin.Channel = model.ChannelLinkedIn
	repo := newStubMessageRepo(dueEmail("m1"), linkedin)
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 1 || result.Skipped != 1 {
		t.Fatalf("sent=%d skipped=%d, want 1/1", result.Sent, result.Skipped)
	}
	if _, ok := repo.transitions["m2"]; ok {
		t.Error("skipped message was persisted")
	}
}

func TestSendDueNothingDue(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{accepted()}}
	repo := newStubMessageRepo()
	svc := newTestService(client, repo)

	result, err := svc.SendDue(context.Background(), 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent != 0 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want all zero", result)
	}
	if client.calls != 0 {
		t.Errorf("provider called %d times with nothing due", client.calls)
	}
}

func TestSendDueUnknownCampaign(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{accepted()}}
	svc := newTestService(client, newStubMessageRepo())

	if _, err := svc.SendDue(context.Background(), 99, nil); err == nil {
		t.Fatal("unknown campaign did not surface an error")
	}
}

func TestScheduleOutreachFallsBackToCampaignLimits(t *testing.T) {
	client := &scriptedClient{responses: []*rest.Response{accepted()}}
	repo := newStubMessageRepo()
	svc := newTestService(client, repo)
	svc.Campaigns = &stubCampaignRepo{campaign: &model.Campaign{
		ID: 7, Timezone: "UTC", DailyLimits: map[string]int{"email": 1},
	}}
	svc.Scheduler = scheduleTestScheduler(repo, svc.Now())

	sequences := map[model.Channel][]model.SequenceStep{
		model.ChannelEmail: {{SequenceNumber: 1, Content: "hi"}},
	}
	result, err := svc.ScheduleOutreach(7, 3, sequences, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalScheduled != 1 {
		t.Errorf("scheduled = %d, campaign limits not applied", result.TotalScheduled)
	}
}
