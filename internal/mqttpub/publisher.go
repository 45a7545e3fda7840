// Package mqttpub mirrors mood session events onto an MQTT broker so home
// automation dashboards can follow what huemood is doing to each bulb.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/config"
	"github.com/dokzlo13/huemood/internal/eventbus"
)

// Publisher publishes session events as retained JSON state topics.
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher connects to the broker and returns a publisher. Connection
// losses are retried by the client; publishes during an outage are dropped.
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Info().Msg("MQTT reconnecting")
		})

	client := mqtt.NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", t.Error())
	}

	log.Info().Str("broker", cfg.Broker).Str("prefix", cfg.TopicPrefix).Msg("Connected to MQTT broker")
	return &Publisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// Subscribe attaches the publisher to the event bus. Each bulb gets a
// retained state topic at <prefix>/<bulb>/state holding the latest event.
func (p *Publisher) Subscribe(bus *eventbus.Bus) {
	bus.SubscribeAll(func(e eventbus.Event) {
		payload, err := json.Marshal(map[string]any{
			"event":      string(e.Type),
			"session_id": e.SessionID,
			"bulb":       e.Bulb,
			"at":         e.At.Format(time.RFC3339),
			"data":       e.Data,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal MQTT state payload")
			return
		}

		topic := fmt.Sprintf("%s/%s/state", p.prefix, e.Bulb)
		if t := p.client.Publish(topic, 0, true, payload); t.Wait() && t.Error() != nil {
			log.Error().Err(t.Error()).Str("topic", topic).Msg("MQTT publish error")
		}
	})
}

// Close disconnects from the broker, allowing in-flight publishes to drain.
func (p *Publisher) Close(ctx context.Context) {
	deadline := uint(250)
	if d, ok := ctx.Deadline(); ok {
		if ms := time.Until(d).Milliseconds(); ms > 0 {
			deadline = uint(ms)
		}
	}
	p.client.Disconnect(deadline)
	log.Debug().Msg("MQTT client disconnected")
}
