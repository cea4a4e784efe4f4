package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

const QueueName = "outreach_jobs"

const (
	JobLeadOutreach = "lead_outreach"
	JobSendEmail    = "send_email"
)

// Job is the unit of work exchanged with the worker. JobType discriminates
// which payload fields are meaningful.
type Job struct {
	JobType    string                                 `json:"job_type"`
	CampaignID int                                    `json:"campaign_id"`
	LeadID     int                                    `json:"lead_id,omitempty"`
	MessageIDs []string                               `json:"message_ids,omitempty"`
	Sequences  map[model.Channel][]model.SequenceStep `json:"sequences,omitempty"`
	DailyLimit map[string]int                         `json:"daily_limits,omitempty"`
}

// Publisher pushes jobs onto the durable outreach queue.
type Publisher struct {
	ch    *amqp.Channel
	queue string
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &Publisher{ch: ch, queue: QueueName}, nil
}

func (p *Publisher) Publish(job *Job) error {
	return p.publish(job, nil)
}

// Republish re-enqueues a failed job carrying its retry count in the
// x-retry-count header, so the consumer can bound redelivery. A plain
// nack-requeue would redeliver with the original headers and lose the count.
func (p *Publisher) Republish(job *Job, retryCount int32) error {
	return p.publish(job, amqp.Table{"x-retry-count": retryCount})
}

func (p *Publisher) publish(job *Job, headers amqp.Table) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
