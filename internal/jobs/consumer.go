package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
	"github.com/Ichinga-Samuel/MonieWatch/internal/report"
	"github.com/Ichinga-Samuel/MonieWatch/internal/store"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moniewatch_jobs_total",
	Help: "Total number of report jobs consumed, by outcome",
}, []string{"outcome"})

// Config holds the RabbitMQ topology for report jobs.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = "moniewatch.reports"
	}
	if c.Queue == "" {
		c.Queue = "moniewatch.reports.generate"
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "reports.generate"
	}
}

// PrincipalSource resolves stored aggregator accounts. Satisfied by
// *store.Store.
type PrincipalSource interface {
	GetPrincipal(ctx context.Context, username string) (*aggregator.Principal, error)
	ListPrincipals(ctx context.Context) ([]aggregator.Principal, error)
}

// Consumer receives report jobs from a queue and runs the report pipeline
// for each.
type Consumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	config     Config
	reports    *report.Service
	principals PrincipalSource
	logger     zerolog.Logger
}

// NewConsumer connects to RabbitMQ and declares the job topology. principals
// may be nil, in which case every job must carry its own credentials.
func NewConsumer(cfg Config, reports *report.Service, principals PrincipalSource) (*Consumer, error) {
	cfg.applyDefaults()

	conn, channel, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger := logging.NewLogger("jobs")
	logger.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", cfg.Queue).
		Str("routing_key", cfg.RoutingKey).
		Msg("Job consumer initialized")

	return &Consumer{
		conn:       conn,
		channel:    channel,
		config:     cfg,
		reports:    reports,
		principals: principals,
		logger:     logger,
	}, nil
}

// Start consumes jobs until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.config.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.Info().Str("queue", c.config.Queue).Msg("Waiting for report jobs")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Job consumer stopping")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	job, err := decodeJob(delivery.Body)
	if err != nil {
		jobsTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn().Err(err).Msg("Dropping malformed job")
		delivery.Nack(false, false)
		return
	}

	logger := c.logger.With().Str("principal", job.Username).Logger()

	opts, err := job.options()
	if err != nil {
		jobsTotal.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("Dropping job with invalid options")
		delivery.Nack(false, false)
		return
	}

	if job.Username == AllPrincipals {
		c.handleAll(ctx, delivery, opts, logger)
		return
	}

	principal, err := c.resolvePrincipal(ctx, job)
	if err != nil {
		jobsTotal.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("Dropping job for unknown principal")
		delivery.Nack(false, false)
		return
	}

	if err := c.reports.Generate(ctx, principal, opts); err != nil {
		jobsTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("Report job failed")
		delivery.Nack(false, false)
		return
	}

	jobsTotal.WithLabelValues("ok").Inc()
	delivery.Ack(false)
}

// handleAll runs the pipeline for every stored principal.
func (c *Consumer) handleAll(ctx context.Context, delivery amqp.Delivery, opts aggregator.Options, logger zerolog.Logger) {
	if c.principals == nil {
		jobsTotal.WithLabelValues("invalid").Inc()
		logger.Warn().Msg("Dropping all-principals job: no principal store configured")
		delivery.Nack(false, false)
		return
	}

	principals, err := c.principals.ListPrincipals(ctx)
	if err != nil {
		jobsTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("All-principals job failed to list accounts")
		delivery.Nack(false, false)
		return
	}

	failed := c.reports.GenerateAll(ctx, principals, opts)
	if failed > 0 {
		jobsTotal.WithLabelValues("failed").Inc()
	} else {
		jobsTotal.WithLabelValues("ok").Inc()
	}
	logger.Info().
		Int("principals", len(principals)).
		Int("failed", failed).
		Msg("All-principals job finished")
	delivery.Ack(false)
}

func (c *Consumer) resolvePrincipal(ctx context.Context, job *GenerateReportJob) (aggregator.Principal, error) {
	var stored *aggregator.Principal
	if c.principals != nil {
		p, err := c.principals.GetPrincipal(ctx, job.Username)
		switch {
		case err == nil:
			stored = p
		case errors.Is(err, store.ErrNotFound):
			// fall through to payload credentials
		default:
			return aggregator.Principal{}, err
		}
	}

	principal := job.principal(stored)
	if principal.Password == "" {
		return aggregator.Principal{}, fmt.Errorf("no credentials for %s", job.Username)
	}
	return principal, nil
}

// Close shuts down the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing channel")
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func connect(cfg Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, channel, nil
}
