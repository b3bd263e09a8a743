package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oksasatya/go-ddd-auth/config"
	esinfra "github.com/oksasatya/go-ddd-auth/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/go-ddd-auth/internal/worker"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
	"github.com/oksasatya/go-ddd-auth/pkg/mailer"
)

// Consumes the auth event queue (audit + notifications) and the email job
// queue, each on its own channel.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-worker", cfg.Env, cfg.LogLevel)

	if cfg.RabbitMQURL == "" {
		logger.Fatal("RabbitMQ not configured")
	}

	var mail worker.MailSender
	if cfg.MailSendEnabled {
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
			logger.Fatal("Mailgun not configured; set MAIL_SEND_ENABLED=false to run without email")
		}
		mail = mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	} else {
		logger.Warn("MAIL_SEND_ENABLED=false; notifications are not sent")
	}

	var audit worker.AuditSink
	if addrs := cfg.ESAddrs(); len(addrs) > 0 && cfg.ESAuditIndex != "" {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Fatal("elasticsearch client")
		}
		audit = esinfra.NewAuditIndex(es, cfg.ESAuditIndex)
	}

	h := worker.NewHandler(cfg, audit, mail, logger)

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.WithError(err).Fatal("amqp dial")
	}
	defer func() { _ = conn.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queues := map[string]worker.HandlerFunc{
		cfg.RabbitMQEventsQueue: h.HandleEvent,
		cfg.RabbitMQEmailQueue:  h.HandleEmailJob,
	}
	var wg sync.WaitGroup
	for queue, fn := range queues {
		queue, fn := queue, fn
		ch, err := conn.Channel()
		if err != nil {
			logger.WithError(err).Fatal("amqp channel")
		}
		// prefetch for fair dispatch
		if err := ch.Qos(16, 0, false); err != nil {
			logger.WithError(err).Fatal("qos")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = ch.Close() }()
			if err := worker.Consume(ctx, ch, queue, fn, worker.DefaultRetryPolicy(), logger); err != nil {
				logger.WithError(err).Error("consumer stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()
}
