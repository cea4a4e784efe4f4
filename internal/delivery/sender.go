package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
)

// SendOptions carries the campaign-level delivery settings.
type SendOptions struct {
	APIKey         string
	FromEmail      string
	FromName       string
	FooterEnabled  bool
	FooterTemplate string
}

// MessageResult is the per-message outcome of one delivery pass.
type MessageResult struct {
	MessageID         string        `json:"message_id"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	StatusCode        int           `json:"status_code,omitempty"`
	Error             string        `json:"error,omitempty"`
	Category          ErrorCategory `json:"error_category,omitempty"`
	Retryable         bool          `json:"is_retryable,omitempty"`
}

func (r MessageResult) Failed() bool { return r.Error != "" }

type BatchResult struct {
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Total   int             `json:"total"`
	Results []MessageResult `json:"results"`
}

type RetryResult struct {
	Retried int          `json:"retried"`
	Batch   *BatchResult `json:"batch,omitempty"`
}

// Engine delivers due messages through the provider in fixed-size chunks,
// grouping identical content into a single provider call. It never writes
// message records; callers persist status transitions from the results.
type Engine struct {
	Leads        repository.LeadRepositoryInterface
	Pool         *ClientPool
	ChunkSize    int
	RetryBackoff time.Duration

	limiter *rate.Limiter
}

func NewEngine(leads repository.LeadRepositoryInterface, pool *ClientPool, chunkSize int, chunkInterval, retryBackoff time.Duration) *Engine {
	return &Engine{
		Leads:        leads,
		Pool:         pool,
		ChunkSize:    chunkSize,
		RetryBackoff: retryBackoff,
		limiter:      rate.NewLimiter(rate.Every(chunkInterval), 1),
	}
}

// SendBatch delivers the messages chunk by chunk, pacing one chunk per
// interval. Chunks are sequential; a chunk in flight is not cancellable.
func (e *Engine) SendBatch(ctx context.Context, msgs []*model.Message, opts SendOptions) (*BatchResult, error) {
	result := &BatchResult{Total: len(msgs), Results: []MessageResult{}}
	if len(msgs) == 0 {
		return result, nil
	}

	client, err := e.Pool.Acquire(opts.APIKey)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(msgs); start += e.ChunkSize {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		end := start + e.ChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}

		chunk := e.sendChunk(client, msgs[start:end], opts)
		result.Sent += chunk.Sent
		result.Failed += chunk.Failed
		result.Results = append(result.Results, chunk.Results...)
	}

	log.Infof("batch delivery completed: %d sent, %d failed", result.Sent, result.Failed)
	return result, nil
}

type recipient struct {
	msg  *model.Message
	lead *model.Lead
}

type contentGroup struct {
	subject    string
	content    string
	recipients []recipient
}

// sendChunk runs the two-phase algorithm: group messages by identical
// rendered content, then send each group as one provider call with a
// personalization per recipient.
func (e *Engine) sendChunk(client ProviderClient, msgs []*model.Message, opts SendOptions) *BatchResult {
	result := &BatchResult{Total: len(msgs), Results: []MessageResult{}}

	groups := map[string]*contentGroup{}
	order := []string{}

	for _, msg := range msgs {
		lead, err := e.Leads.GetByID(msg.LeadID)
		if err != nil {
			category, canRetry := Classify(err.Error())
			var notFound *appErrors.ErrLeadNotFound
			if errors.As(err, &notFound) {
				category, canRetry = CategoryInvalidEmail, false
			}
			log.WithError(err).Errorf("failed to fetch lead %d for message %s", msg.LeadID, msg.ID)
			result.Results = append(result.Results, MessageResult{
				MessageID: msg.ID, Error: err.Error(), Category: category, Retryable: canRetry,
			})
			result.Failed++
			continue
		}
		if lead.Email == "" {
			result.Results = append(result.Results, MessageResult{
				MessageID: msg.ID,
				Error:     fmt.Sprintf("lead %d has no usable email address", msg.LeadID),
				Category:  CategoryInvalidEmail,
				Retryable: false,
			})
			result.Failed++
			continue
		}

		key := msg.Subject + "||" + msg.Content
		group, ok := groups[key]
		if !ok {
			group = &contentGroup{subject: msg.Subject, content: msg.Content}
			groups[key] = group
			order = append(order, key)
		}
		group.recipients = append(group.recipients, recipient{msg: msg, lead: lead})
	}

	for _, key := range order {
		e.sendGroup(client, groups[key], opts, result)
	}
	return result
}

func (e *Engine) sendGroup(client ProviderClient, group *contentGroup, opts SendOptions, result *BatchResult) {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(opts.FromName, opts.FromEmail))
	m.AddContent(mail.NewContent("text/html", formatHTML(group.content, opts)))

	for _, rcpt := range group.recipients {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail(rcpt.lead.FullName(), rcpt.lead.Email))
		p.Subject = personalize(group.subject, rcpt.lead)
		for variable, value := range substitutions(rcpt.lead) {
			p.SetSubstitution(variable, value)
		}
		p.SetCustomArg("message_id", rcpt.msg.ID)
		p.SetCustomArg("campaign_id", strconv.Itoa(rcpt.msg.CampaignID))
		p.SetCustomArg("lead_id", strconv.Itoa(rcpt.msg.LeadID))
		m.AddPersonalizations(p)
	}

	resp, err := client.Send(m)
	errText := ""
	statusCode := 0
	if err != nil {
		errText = err.Error()
	} else {
		statusCode = resp.StatusCode
		if resp.StatusCode >= 400 {
			errText = strconv.Itoa(resp.StatusCode) + " " + resp.Body
		}
	}

	if errText != "" {
		category, canRetry := Classify(errText)
		log.Errorf("group send of %d recipients failed: %s (category %s, retryable %t)",
			len(group.recipients), errText, category, canRetry)
		for _, rcpt := range group.recipients {
			result.Results = append(result.Results, MessageResult{
				MessageID: rcpt.msg.ID, StatusCode: statusCode,
				Error: errText, Category: category, Retryable: canRetry,
			})
		}
		result.Failed += len(group.recipients)
		return
	}

	providerID := ""
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		providerID = ids[0]
	}
	for _, rcpt := range group.recipients {
		result.Results = append(result.Results, MessageResult{
			MessageID: rcpt.msg.ID, ProviderMessageID: providerID, StatusCode: statusCode,
		})
	}
	result.Sent += len(group.recipients)
}

// RetrySend re-sends only the retryable failures from a previous pass,
// exactly once, after a fixed backoff. With nothing retryable it returns
// immediately without touching the provider.
func (e *Engine) RetrySend(ctx context.Context, msgs []*model.Message, results []MessageResult, opts SendOptions) (*RetryResult, error) {
	retryable := map[string]bool{}
	for _, r := range results {
		if r.Failed() && r.Retryable {
			retryable[r.MessageID] = true
		}
	}
	if len(retryable) == 0 {
		return &RetryResult{Retried: 0}, nil
	}

	subset := make([]*model.Message, 0, len(retryable))
	for _, msg := range msgs {
		if retryable[msg.ID] {
			subset = append(subset, msg)
		}
	}

	log.Infof("retrying %d failed messages after %s", len(subset), e.RetryBackoff)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.RetryBackoff):
	}

	batch, err := e.SendBatch(ctx, subset, opts)
	if err != nil {
		return nil, err
	}
	return &RetryResult{Retried: len(subset), Batch: batch}, nil
}
