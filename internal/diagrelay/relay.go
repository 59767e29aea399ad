// Package diagrelay republishes endpoint error-queue notifications to an
// MQTT broker for fleet diagnostics, generalized from a periodic
// VehicleData snapshot publisher to event-driven publishing of each
// ACK/SCHED/ABORT as it is produced.
package diagrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/openecu/j1939sock/common"
	"github.com/openecu/j1939sock/internal/j1939"
)

// Config mirrors MQTTConfig, trimmed to what a relay needs: no
// data-topic ticker, no command subscription (this layer never accepts
// remote commands).
type Config struct {
	Broker    string
	ClientID  string
	BaseTopic string
}

// DefaultConfig matches the broker/client-id defaults used elsewhere in
// this stack, renamed for this domain.
func DefaultConfig() Config {
	return Config{
		Broker:    "tcp://localhost:1883",
		ClientID:  "j1939sock-diagrelay",
		BaseTopic: "j1939",
	}
}

// event is the JSON wire record published per notification.
type event struct {
	Ifindex    int    `json:"ifindex"`
	Addr       uint8  `json:"addr"`
	Errno      int    `json:"errno"`
	Origin     int    `json:"origin"`
	Info       int    `json:"info"`
	BytesAcked int    `json:"bytes_acked"`
	Timestamp  int64  `json:"timestamp_unix_nano"`
	Kind       string `json:"kind"`
}

// Relay publishes error-queue notifications from every endpoint it is
// told to Watch.
type Relay struct {
	config Config
	client mqtt.Client
	log    *logrus.Entry
}

// NewRelay constructs a Relay; call Connect before Watch.
func NewRelay(config Config, log *logrus.Entry) *Relay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Relay{config: config, log: log}
}

// Connect establishes the MQTT connection using the standard
// NewClientOptions/AddBroker/SetClientID/SetAutoReconnect shape.
func (r *Relay) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(r.config.Broker)
	opts.SetClientID(r.config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		r.log.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		r.log.WithError(err).Warn("lost connection to MQTT broker")
	})

	r.client = mqtt.NewClient(opts)
	if token := r.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("diagrelay: connect: %w", token.Error())
	}
	return nil
}

// Disconnect tears down the MQTT connection.
func (r *Relay) Disconnect() {
	if r.client != nil && r.client.IsConnected() {
		r.client.Disconnect(250)
	}
}

// Watch subscribes to ep's error-queue channel and republishes every
// notification until ctx is cancelled or the channel closes. addr
// identifies the endpoint in the published topic.
func (r *Relay) Watch(ctx context.Context, ifindex int, addr uint8, ep *j1939.Endpoint) {
	go func() {
		ch := ep.ErrQueueChan()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-ch:
				if !ok {
					return
				}
				r.publish(ifindex, addr, entry)
			}
		}
	}()
}

func (r *Relay) publish(ifindex int, addr uint8, entry j1939.ErrQueueEntry) {
	if r.client == nil || !r.client.IsConnected() {
		r.log.Warn("MQTT client not connected, dropping error-queue event")
		return
	}

	ev := event{
		Ifindex:    ifindex,
		Addr:       addr,
		Errno:      int(entry.Errno),
		Origin:     int(entry.Origin),
		Info:       int(entry.Info),
		BytesAcked: entry.BytesAcked,
		Timestamp:  time.Now().UnixNano(),
		Kind:       infoName(entry.Info),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).Error("failed to marshal error-queue event")
		return
	}

	topic := fmt.Sprintf("%s/errq/%d/%d", r.config.BaseTopic, ifindex, addr)
	token := r.client.Publish(topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		r.log.WithError(token.Error()).Error("failed to publish error-queue event")
		return
	}
	r.log.WithFields(logrus.Fields{"topic": topic, "bytes": len(data)}).Debug("published error-queue event")
}

// WatchDTC subscribes to codes (internal/dtcbridge.Bridge.Codes) and
// republishes each decoded trouble code until ctx is cancelled or the
// channel closes. It keeps draining codes whether or not this Relay is
// connected; a code that cannot be published is dropped, which loses one
// MQTT publish but never blocks the bridge.
func (r *Relay) WatchDTC(ctx context.Context, codes <-chan common.DTCCode) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-codes:
				if !ok {
					return
				}
				r.publishDTC(c)
			}
		}
	}()
}

func (r *Relay) publishDTC(c common.DTCCode) {
	if r.client == nil || !r.client.IsConnected() {
		r.log.Warn("MQTT client not connected, dropping DTC event")
		return
	}

	data, err := json.Marshal(c)
	if err != nil {
		r.log.WithError(err).Error("failed to marshal DTC event")
		return
	}

	topic := fmt.Sprintf("%s/dtc/%d", r.config.BaseTopic, c.MID)
	token := r.client.Publish(topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		r.log.WithError(token.Error()).Error("failed to publish DTC event")
		return
	}
	r.log.WithFields(logrus.Fields{"topic": topic, "spn": c.SPN, "fmi": c.FMI}).Debug("published DTC event")
}

func infoName(info j1939.ErrQueueInfo) string {
	switch info {
	case j1939.InfoTstampAck:
		return "ack"
	case j1939.InfoTstampSched:
		return "sched"
	case j1939.InfoTxAbort:
		return "abort"
	default:
		return "unknown"
	}
}
