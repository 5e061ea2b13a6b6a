// Package eventing decouples deposit confirmation from execution advancement
// using a durable NATS JetStream work queue, so a webhook handler that has
// already written the deposit record can return immediately instead of
// waiting on the driver.
//
// Grounded on messaging/nats/client.go's stream/publish conventions and
// messaging/consumers/graph_sync.go's worker-pool Fetch/Ack consumption
// loop, retargeted from liquidity-graph sync events to deposit-confirmed
// events.
package eventing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	natsclient "github.com/plm/liquidity-mesh-router/messaging/nats"
)

// DepositConfirmedStream and DepositConfirmedSubject hold one durable
// work-queue stream for deposit-confirmed events (work-queue retention,
// one subject family).
const (
	DepositConfirmedStream  = "DEPOSIT_CONFIRMED"
	DepositConfirmedSubject = "routing.deposit.confirmed"
	consumerName            = "deposit-confirmed-driver"
)

// DepositConfirmedEvent is published once a deposit webhook has durably
// recorded a confirmed deposit, and consumed to advance the matching
// execution record.
type DepositConfirmedEvent struct {
	ExecutionID string    `json:"executionId"`
	QuoteID     string    `json:"quoteId"`
	DepositID   string    `json:"depositId"`
	Timestamp   time.Time `json:"timestamp"`
}

// SetupStream creates or updates the deposit-confirmed work queue stream.
func SetupStream(ctx context.Context, c *natsclient.Client) error {
	_, err := c.JetStream().CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        DepositConfirmedStream,
		Description: "Deposit confirmation events driving execution advancement",
		Subjects:    []string{"routing.deposit.>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Discard:     jetstream.DiscardOld,
		Replicas:    1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create deposit-confirmed stream: %w", err)
	}
	return nil
}

// Publisher publishes deposit-confirmed events.
type Publisher struct {
	nats *natsclient.Client
}

// NewPublisher wraps an already-connected NATS client.
func NewPublisher(c *natsclient.Client) *Publisher {
	return &Publisher{nats: c}
}

// Publish fires the event for the driver consumer to pick up. A nil
// Publisher is a no-op, so callers can wire the synchronous fallback
// (driver.Advance called directly) when NATS is not configured.
func (p *Publisher) Publish(ctx context.Context, event DepositConfirmedEvent) error {
	if p == nil || p.nats == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal deposit-confirmed event: %w", err)
	}
	_, err = p.nats.JetStream().Publish(ctx, DepositConfirmedSubject, data)
	if err != nil {
		return fmt.Errorf("failed to publish deposit-confirmed event: %w", err)
	}
	return nil
}

// Advancer is the subset of routing/driver.Driver the consumer needs,
// kept as an interface so tests can stub it without a real pipeline.
type Advancer interface {
	Advance(ctx context.Context, executionID string)
}

// Consumer pulls deposit-confirmed events and advances the matching
// execution driver, so the webhook itself never blocks on settlement.
type Consumer struct {
	nats     *natsclient.Client
	driver   Advancer
	consumer jetstream.Consumer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	workers  int
	batch    int
}

// Config configures the consumer's worker count and batch size.
type Config struct {
	Workers   int
	BatchSize int
}

// DefaultConfig mirrors consumers.DefaultGraphSyncConfig's defaults, scaled
// down for a single-topic consumer.
func DefaultConfig() *Config {
	return &Config{Workers: 2, BatchSize: 20}
}

// NewConsumer creates a durable work-queue consumer for deposit-confirmed
// events.
func NewConsumer(ctx context.Context, c *natsclient.Client, driver Advancer, cfg *Config) (*Consumer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	consumerCfg := natsclient.DefaultConsumerConfig(DepositConfirmedStream, consumerName)
	consumerCfg.FilterSubject = DepositConfirmedSubject
	consumerCfg.MaxAckPending = cfg.BatchSize * cfg.Workers

	consumer, err := c.CreateWorkQueueConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit-confirmed consumer: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	return &Consumer{
		nats:     c,
		driver:   driver,
		consumer: consumer,
		ctx:      consumerCtx,
		cancel:   cancel,
		workers:  cfg.Workers,
		batch:    cfg.BatchSize,
	}, nil
}

// Start spawns the consumer's worker goroutines.
func (c *Consumer) Start() {
	log.Printf("starting deposit-confirmed consumer with %d workers", c.workers)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
}

// Stop cancels in-flight fetches and waits for workers to exit.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Consumer) worker(id int) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msgs, err := c.consumer.Fetch(c.batch, jetstream.FetchMaxWait(time.Second))
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				continue
			}
			for msg := range msgs.Messages() {
				if err := c.process(msg); err != nil {
					log.Printf("⚠️  eventing worker %d: %v", id, err)
					msg.Nak()
					continue
				}
				msg.Ack()
			}
		}
	}
}

func (c *Consumer) process(msg jetstream.Msg) error {
	var event DepositConfirmedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal deposit-confirmed event: %w", err)
	}
	if event.ExecutionID == "" {
		return fmt.Errorf("deposit-confirmed event missing executionId")
	}
	c.driver.Advance(c.ctx, event.ExecutionID)
	return nil
}
