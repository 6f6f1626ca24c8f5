// Package events publishes run completions to an MQTT broker so other
// systems can react to agent activity. Publishing is best effort: every
// failure is logged and swallowed, never surfaced to the run that
// produced the event.
package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/reevelabs/reeve-agent/internal/config"
)

// connectWait bounds how long Start waits for the initial broker
// connection before letting autopaho keep retrying in the background.
const connectWait = 10 * time.Second

// RunEvent is the payload published to the runs topic after each
// completed run.
type RunEvent struct {
	RequestID      string    `json:"request_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Model          string    `json:"model"`
	Response       string    `json:"response"`
	Iterations     int       `json:"iterations"`
	ToolCalls      int       `json:"tool_calls"`
	TotalTokens    int       `json:"total_tokens"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher manages the MQTT connection and run-event publishing.
type Publisher struct {
	cfg    config.EventsConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// before publishing.
func New(cfg config.EventsConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "events"),
	}
}

// Start connects to the broker. The broker marks this instance offline
// through the will message if the process dies; a clean shutdown goes
// through Stop instead. Start returns once the initial connection is up
// or the wait budget expires; autopaho keeps retrying in the background
// either way.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("broker connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "reeve-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("initial broker connection timed out, retrying in background", "error", err)
	}
	return nil
}

// Stop publishes an offline availability message and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// PublishRun publishes a run event. Failures are logged and dropped;
// the run that produced the event has already completed.
func (p *Publisher) PublishRun(ctx context.Context, ev RunEvent) {
	if p.cm == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal run event", "request_id", ev.RequestID, "error", err)
		return
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.runsTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		p.logger.Warn("run event publish failed",
			"request_id", ev.RequestID, "topic", p.runsTopic(), "error", err)
		return
	}
	p.logger.Debug("run event published", "request_id", ev.RequestID, "topic", p.runsTopic())
}

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) runsTopic() string {
	return p.baseTopic() + "/runs"
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("availability published", "status", status)
}
