package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"markertransfer/core/events"
)

const (
	defaultExchange      = "rmt.events"
	defaultRoutingPrefix = "rmt"
	defaultQueueSize     = 1024
	publishTimeout       = 5 * time.Second
)

// Config selects the broker and topic exchange committed events are
// published to.
type Config struct {
	URL           string
	Exchange      string
	RoutingPrefix string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Exchange) == "" {
		c.Exchange = defaultExchange
	}
	if strings.TrimSpace(c.RoutingPrefix) == "" {
		c.RoutingPrefix = defaultRoutingPrefix
	}
	return c
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the JSON body published for every event.
type Message struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  string            `json:"timestamp"`
}

type job struct {
	key string
	msg amqp.Publishing
}

// Publisher forwards committed events to a RabbitMQ topic exchange under the
// routing key "<prefix>.<event type>". Publishing happens on a background
// worker so a slow broker never stalls the node.
type Publisher struct {
	cfg     Config
	channel Channel
	conn    *amqp.Connection
	logger  *slog.Logger
	now     func() time.Time

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(cfg Config, logger *slog.Logger) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("indexer: AMQP URL required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("indexer: connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("indexer: open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("indexer: declare exchange: %w", err)
	}
	p := NewPublisher(channel, cfg, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already configured channel.
func NewPublisher(channel Channel, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		cfg:     cfg.withDefaults(),
		channel: channel,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan job, defaultQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(1)
	go p.worker()
	p.logger.Info("event indexer publisher ready",
		slog.String("exchange", p.cfg.Exchange),
		slog.String("routing_prefix", p.cfg.RoutingPrefix))
	return p
}

// RoutingKey returns the key an event of eventType is published under.
func (p *Publisher) RoutingKey(eventType string) string {
	return p.cfg.RoutingPrefix + "." + eventType
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	raw := evt.Event()
	now := p.now().UTC()
	body, err := json.Marshal(Message{Type: raw.Type, Attributes: raw.Attributes, Timestamp: now.Format(time.RFC3339)})
	if err != nil {
		p.logger.Error("encode indexer event", slog.String("type", raw.Type), slog.Any("error", err))
		return
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Type:         raw.Type,
		Body:         body,
	}
	if denom := raw.Attributes["denom"]; denom != "" {
		msg.Headers = amqp.Table{"denom": denom}
	}
	select {
	case <-p.ctx.Done():
		return
	default:
	}
	select {
	case p.queue <- job{key: p.RoutingKey(raw.Type), msg: msg}:
	default:
		p.logger.Warn("indexer queue full, dropping event", slog.String("type", raw.Type))
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.queue:
			p.publish(j)
		case <-p.ctx.Done():
			for {
				select {
				case j := <-p.queue:
					p.publish(j)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.channel.PublishWithContext(ctx, p.cfg.Exchange, j.key, false, false, j.msg); err != nil {
		p.logger.Error("publish indexer event",
			slog.String("exchange", p.cfg.Exchange),
			slog.String("routing_key", j.key),
			slog.Any("error", err))
	}
}

// Close drains queued events and releases the channel and connection.
func (p *Publisher) Close() error {
	p.cancel()
	p.wg.Wait()
	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
