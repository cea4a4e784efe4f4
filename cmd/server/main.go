package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/nickgarreis/agentic-outreach-system/internal/config"
	"github.com/nickgarreis/agentic-outreach-system/internal/db"
	"github.com/nickgarreis/agentic-outreach-system/internal/delivery"
	"github.com/nickgarreis/agentic-outreach-system/internal/handler"
	"github.com/nickgarreis/agentic-outreach-system/internal/queue"
	"github.com/nickgarreis/agentic-outreach-system/internal/repository"
	"github.com/nickgarreis/agentic-outreach-system/internal/schedule"
	"github.com/nickgarreis/agentic-outreach-system/internal/service"
	"github.com/nickgarreis/agentic-outreach-system/internal/tracker"
)

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

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	jobs, err := queue.NewPublisher(amqpConn)
	if err != nil {
		log.Fatalf("failed to set up job queue: %v", err)
	}
	defer jobs.Close()

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

	outreachHandler := &handler.OutreachHandler{
		Service: outreachService,
		Jobs:    jobs,
	}
	webhookHandler := &handler.WebhookHandler{
		Tracker:    &tracker.Tracker{Messages: messageRepo, Campaigns: campaignRepo},
		WebhookKey: cfg.WebhookKey,
	}

	r := chi.NewRouter()
	r.Post("/campaigns/{id}/schedule", outreachHandler.ScheduleOutreachHandler)
	r.Post("/campaigns/{id}/send", outreachHandler.SendDueHandler)
	r.Post("/webhooks/sendgrid", webhookHandler.HandleProviderEvents)

	log.Infof("server running on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
