package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
)

// Publisher dispatches report jobs to the exchange.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	logger  zerolog.Logger
}

// NewPublisher connects to RabbitMQ and declares the job exchange.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.applyDefaults()

	conn, channel, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		conn:    conn,
		channel: channel,
		config:  cfg,
		logger:  logging.NewLogger("jobs"),
	}, nil
}

// Publish dispatches one report job.
func (p *Publisher) Publish(ctx context.Context, job GenerateReportJob) error {
	if job.Username == "" {
		return fmt.Errorf("publish job: missing username")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.config.Exchange, p.config.RoutingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish job for %s: %w", job.Username, err)
	}

	p.logger.Debug().Str("principal", job.Username).Msg("Report job published")
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
