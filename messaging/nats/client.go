// Package nats provides NATS JetStream integration for the Predictive Liquidity Mesh.
// Implements async work queues with explicit acks and at-least-once redelivery.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds NATS connection configuration
type Config struct {
	// Connection URLs (comma-separated for cluster)
	URLs string

	// Authentication
	Token    string
	User     string
	Password string

	// TLS
	CertFile string
	KeyFile  string
	CAFile   string

	// Reconnection
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

// DefaultConfig returns development defaults
func DefaultConfig() *Config {
	return &Config{
		URLs:            "nats://localhost:4222",
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}
}

// Client wraps NATS connection with JetStream support
type Client struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	mu  sync.RWMutex
	cfg *Config
}

// NewClient creates a new NATS client with JetStream
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter*2),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				fmt.Printf("NATS disconnected: %v\n", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			fmt.Printf("NATS reconnected to %s\n", nc.ConnectedUrl())
		}),
	}

	// Authentication
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	// Connect
	nc, err := nats.Connect(cfg.URLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{
		nc:  nc,
		js:  js,
		cfg: cfg,
	}, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nil {
		c.nc.Drain()
	}
}

// JetStream returns the JetStream context
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// ConsumerConfig configures a work queue consumer
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	FilterSubject string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible consumer defaults
func DefaultConsumerConfig(stream, name string) *ConsumerConfig {
	return &ConsumerConfig{
		StreamName:    stream,
		ConsumerName:  name,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
		MaxAckPending: 1000,
	}
}

// CreateWorkQueueConsumer creates a durable work queue consumer
func (c *Client) CreateWorkQueueConsumer(ctx context.Context, cfg *ConsumerConfig) (jetstream.Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
	}

	if cfg.FilterSubject != "" {
		consumerCfg.FilterSubject = cfg.FilterSubject
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer, nil
}
