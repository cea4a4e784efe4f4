package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/nickgarreis/agentic-outreach-system/internal/config"
	"github.com/nickgarreis/agentic-outreach-system/internal/db"
	"github.com/nickgarreis/agentic-outreach-system/internal/delivery"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
	"github.com/nickgarreis/agentic-outreach-system/internal/queue"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
	"github.com/nickgarreis/agentic-outreach-system/internal/schedule"
	"github.com/nickgarreis/agentic-outreach-system/internal/service"
)

const maxJobRetries = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}

	scheduler := schedule.NewScheduler(messageRepo, schedule.Config{
		DefaultTimezone:   cfg.Timezone,
		BusinessStartHour: cfg.BusinessStartHour,
		BusinessEndHour:   cfg.BusinessEndHour,
		MinGap:            cfg.MinGap,
		SlotHorizonDays:   cfg.SlotHorizonDays,
	})

	pool := delivery.NewClientPool(cfg.PoolSize, cfg.PoolTTL)
	engine := delivery.NewEngine(leadRepo, pool, cfg.ChunkSize, cfg.ChunkInterval, cfg.RetryBackoff)

	outreachService := &service.OutreachService{
		Campaigns: campaignRepo,
		Leads:     leadRepo,
		Messages:  messageRepo,
		Scheduler: scheduler,
		Engine:    engine,
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	publisher, err := queue.NewPublisher(amqpConn)
	if err != nil {
		log.Fatalf("failed to set up job queue: %v", err)
	}
	defer publisher.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatalf("failed to open a channel: %v", err)
	}
	defer ch.Close()

	msgs, err := ch.Consume(
		queue.QueueName,
		"",    // consumer tag
		false, // autoAck off for reliability
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		log.Fatalf("failed to register consumer: %v", err)
	}

	// Sweep for newly due messages and enqueue delivery jobs for them.
	c := cron.New()
	c.AddFunc("@every 1m", func() {
		enqueueDueCampaigns(messageRepo, publisher)
	})
	c.Start()
	defer c.Stop()

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			processJob(outreachService, publisher, d.Body, d.Headers)
			d.Ack(false)
		}
	}()

	log.Info("worker running, waiting for jobs...")
	<-forever
}

// outreachRunner is the slice of the service the worker drives.
type outreachRunner interface {
	ScheduleOutreach(campaignID, leadID int, sequences map[model.Channel][]model.SequenceStep, dailyLimits map[string]int) (*schedule.ScheduleResult, error)
	SendDue(ctx context.Context, campaignID int, messageIDs []string) (*service.DeliveryResult, error)
}

type jobRequeuer interface {
	Republish(job *queue.Job, retryCount int32) error
}

// processJob runs one delivery. A failed job is re-published with an
// incremented x-retry-count header (a nack-requeue would keep the original
// headers and never advance the count); after maxJobRetries attempts it is
// dropped. The caller acks the delivery either way.
func processJob(svc outreachRunner, jobs jobRequeuer, body []byte, headers amqp.Table) {
	var job queue.Job
	if err := json.Unmarshal(body, &job); err != nil {
		log.WithError(err).Error("invalid job payload, dropping")
		return
	}

	err := handleJob(svc, &job)
	if err == nil {
		return
	}
	log.WithError(err).Errorf("%s job for campaign %d failed", job.JobType, job.CampaignID)

	retries := retryCountFrom(headers)
	if retries >= maxJobRetries {
		log.Errorf("dropping %s job for campaign %d after %d attempts", job.JobType, job.CampaignID, retries+1)
		return
	}
	if err := jobs.Republish(&job, retries+1); err != nil {
		log.WithError(err).Errorf("failed to requeue %s job for campaign %d", job.JobType, job.CampaignID)
	}
}

func retryCountFrom(headers amqp.Table) int32 {
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	}
	return 0
}

func handleJob(svc outreachRunner, job *queue.Job) error {
	switch job.JobType {
	case queue.JobLeadOutreach:
		result, err := svc.ScheduleOutreach(job.CampaignID, job.LeadID, job.Sequences, job.DailyLimit)
		if err != nil {
			return err
		}
		log.Infof("scheduled %d messages (skipped %d) for lead %d", result.TotalScheduled, result.Skipped, job.LeadID)
		return nil

	case queue.JobSendEmail:
		result, err := svc.SendDue(context.Background(), job.CampaignID, job.MessageIDs)
		if err != nil {
			return err
		}
		log.Infof("delivered campaign %d: %d sent, %d failed, %d retried", job.CampaignID, result.Sent, result.Failed, result.Retried)
		return nil

	default:
		log.Warnf("unknown job type %q, dropping", job.JobType)
		return nil
	}
}

func enqueueDueCampaigns(messages repository.MessageRepositoryInterface, publisher *queue.Publisher) {
	campaignIDs, err := messages.CampaignsWithDue(time.Now())
	if err != nil {
		log.WithError(err).Error("failed to find campaigns with due messages")
		return
	}

	for _, id := range campaignIDs {
		job := &queue.Job{JobType: queue.JobSendEmail, CampaignID: id}
		if err := publisher.Publish(job); err != nil {
			log.WithError(err).Errorf("failed to enqueue send job for campaign %d", id)
			continue
		}
		log.Debugf("enqueued send job for campaign %d", id)
	}
}
