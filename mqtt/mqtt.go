// Package mqtt wraps the paho client used to talk to the field device.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("mqtt: client not connected")

type Config struct {
	BrokerURL     string
	ClientID      string
	Username      string
	Password      string
	QoS           byte
	Retained      bool
	MaxRetries    int
	RetryInterval time.Duration
}

type MessageHandler func(topic string, payload []byte)

type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   paho.Client

	mu   sync.Mutex
	subs map[string]MessageHandler
}

func newOptions(cfg Config, c *Client) *paho.ClientOptions {
	opts := paho.NewClientOptions().AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(cfg.RetryInterval)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		c.logger.Info("mqtt reconnecting", "broker", cfg.BrokerURL)
	})
	return opts
}

// Connect dials the broker, trying up to cfg.MaxRetries times. Once
// connected the client reconnects on its own and restores subscriptions.
//
// When every attempt fails Connect still returns a usable client along with
// the error: it keeps dialing in the background every cfg.RetryInterval and
// Publish reports ErrNotConnected until the broker answers.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "mqtt")),
		subs:   make(map[string]MessageHandler),
	}
	opts := newOptions(cfg, c)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		conn := paho.NewClient(opts)
		token := conn.Connect()
		if !token.WaitTimeout(cfg.RetryInterval) {
			lastErr = errors.New("connect timed out")
		} else {
			lastErr = token.Error()
		}
		if lastErr == nil {
			c.conn = conn
			c.logger.Info("connected to mqtt broker", "broker", cfg.BrokerURL)
			return c, nil
		}

		c.logger.Warn("failed to connect to mqtt broker",
			"attempt", attempt, "max", cfg.MaxRetries, "error", lastErr)
		if attempt < cfg.MaxRetries {
			time.Sleep(cfg.RetryInterval)
		}
	}

	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.RetryInterval)
	c.conn = paho.NewClient(opts)
	c.conn.Connect()
	c.logger.Info("retrying mqtt connection in the background", "broker", cfg.BrokerURL, "interval", cfg.RetryInterval)

	return c, fmt.Errorf("mqtt connect to %s after %d attempts: %w", cfg.BrokerURL, cfg.MaxRetries, lastErr)
}

func (c *Client) onConnect(conn paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, h := range c.subs {
		c.subscribe(conn, topic, h)
	}
}

func (c *Client) subscribe(conn paho.Client, topic string, h MessageHandler) paho.Token {
	token := conn.Subscribe(topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	go func() {
		if token.Wait() && token.Error() != nil {
			c.logger.Error("subscribe failed", "topic", topic, "error", token.Error())
		}
	}()
	return token
}

// Subscribe registers h for topic. The subscription is renewed after every
// reconnect.
func (c *Client) Subscribe(topic string, h MessageHandler) error {
	if c == nil {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}
	token := c.subscribe(c.conn, topic, h)
	if !token.WaitTimeout(c.cfg.RetryInterval) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	return token.Error()
}

// Publish hands payload to the client. It fails fast when the broker is
// unreachable; delivery errors after that are only logged.
func (c *Client) Publish(topic string, payload []byte) error {
	if c == nil || c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}
	token := c.conn.Publish(topic, c.cfg.QoS, c.cfg.Retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			c.logger.Error("publish failed", "topic", topic, "error", token.Error())
		}
	}()
	c.logger.Debug("published", "topic", topic, "payload", string(payload))
	return nil
}

// Close disconnects, or stops dialing when the broker was never reached.
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.logger.Info("disconnecting from mqtt broker")
		// wait up to 250ms for in-flight messages
		c.conn.Disconnect(250)
	}
}
