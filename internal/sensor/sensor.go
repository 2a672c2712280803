// Package sensor ingests power-meter telemetry. The ANT+ stick itself is
// handled by an external gateway that republishes each sensor channel as
// JSON over MQTT; this package subscribes to those topics and feeds decoded
// samples into the session lifecycle.
package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// SampleHandler consumes decoded power samples.
type SampleHandler interface {
	HandleSample(ts int64, powerW float64)
}

// Broadcaster receives the telemetry passthrough events.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Config locates the gateway's broker.
type Config struct {
	BrokerURL string // e.g. mqtt://127.0.0.1:1883
	Topic     string // subscription filter, e.g. bike/telemetry/#
	ClientID  string
}

// Ingest is the MQTT subscriber. Reconnection is handled by the managed
// connection: a broker outage degrades the system to "no telemetry" while
// the API keeps serving.
type Ingest struct {
	cfg     Config
	handler SampleHandler
	hub     Broadcaster
	log     *slog.Logger
	now     func() time.Time

	cm *autopaho.ConnectionManager
}

// New creates an ingester; call Start to connect.
func New(cfg Config, handler SampleHandler, hub Broadcaster, log *slog.Logger) *Ingest {
	return &Ingest{
		cfg:     cfg,
		handler: handler,
		hub:     hub,
		log:     log,
		now:     time.Now,
	}
}

// Start connects to the broker and subscribes. It returns once the managed
// connection is set up; connect failures after that are logged and retried
// in the background.
func (i *Ingest) Start(ctx context.Context) error {
	u, err := url.Parse(i.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parsing broker url: %w", err)
	}

	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			i.log.Info("sensor gateway connected", "broker", i.cfg.BrokerURL, "topic", i.cfg.Topic)
			_, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: i.cfg.Topic}},
			})
			if err != nil {
				i.log.Error("telemetry subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			i.log.Warn("sensor gateway unreachable, retrying", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: i.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					i.onMessage(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				i.log.Warn("sensor connection lost", "error", err)
			},
		},
	})
	if err != nil {
		return fmt.Errorf("starting mqtt connection: %w", err)
	}
	i.cm = cm
	return nil
}

// AwaitConnection blocks until the broker is reachable or ctx expires.
// Useful in tests; the server itself starts without waiting.
func (i *Ingest) AwaitConnection(ctx context.Context) error {
	return i.cm.AwaitConnection(ctx)
}

// Close disconnects from the broker.
func (i *Ingest) Close(ctx context.Context) error {
	if i.cm == nil {
		return nil
	}
	return i.cm.Disconnect(ctx)
}

// telemetryEvent is the passthrough frame sent to viewers for every decoded
// gateway message, whether or not it carried power.
type telemetryEvent struct {
	Channel string `json:"channel"`
	TS      int64  `json:"t"`
	Reading
}

// onMessage decodes one gateway payload. Malformed payloads are dropped
// without surfacing anything; a bad message must never stall the stream.
func (i *Ingest) onMessage(topic string, payload []byte) {
	reading, ok := decodeReading(payload)
	if !ok {
		i.log.Debug("dropping malformed telemetry", "topic", topic)
		return
	}

	ts := i.now().UnixMilli()
	i.hub.Broadcast("telemetry", telemetryEvent{
		Channel: channelName(topic),
		TS:      ts,
		Reading: reading,
	})

	if reading.PowerW != nil {
		i.handler.HandleSample(ts, *reading.PowerW)
	}
}

// channelName is the last topic segment, the gateway's channel label
// (fitness-equipment vs. power-meter profile).
func channelName(topic string) string {
	if idx := strings.LastIndexByte(topic, '/'); idx >= 0 {
		return topic[idx+1:]
	}
	return topic
}
