// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

// MQTTConfig selects the broker and topic events are published to.
type MQTTConfig struct {
	Broker    string
	Topic     string
	ClientID  string
	Username  string
	Password  string
	// QueueSize bounds the events waiting to be published. Zero means
	// DefaultQueueSize.
	QueueSize int
}

// mqttClient is the subset of mqtt.Client the transport uses.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTTransport publishes each event as a JSON message at QoS 0.
type MQTTTransport struct {
	client mqttClient
	topic  string
	queue  chan event.PitchDetected
	drops  *dropCounter
	log    *log.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMQTTTransport connects to the broker and starts the publish worker.
func NewMQTTTransport(cfg MQTTConfig, m *metrics.Pipeline) (*MQTTTransport, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)

	return newMQTTTransport(mqtt.NewClient(opts), cfg, m)
}

func newMQTTTransport(client mqttClient, cfg MQTTConfig, m *metrics.Pipeline) (*MQTTTransport, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic must not be empty")
	}

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	t := &MQTTTransport{
		client: client,
		topic:  cfg.Topic,
		queue:  make(chan event.PitchDetected, queueSize),
		drops:  newDropCounter("mqtt", m),
		log:    log.Named("mqtt"),
		done:   make(chan struct{}),
	}
	t.log.Infof("publishing events to %s on %s", cfg.Topic, cfg.Broker)

	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Name implements Transport.
func (t *MQTTTransport) Name() string { return "mqtt" }

// Publish queues e, dropping it if the queue is full.
func (t *MQTTTransport) Publish(e event.PitchDetected) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	select {
	case t.queue <- e:
	default:
		t.drops.drop()
	}
	return nil
}

func (t *MQTTTransport) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case e := <-t.queue:
			payload, err := json.Marshal(e)
			if err != nil {
				t.log.Errorf("encode event %d: %v", e.Sequence, err)
				continue
			}
			token := t.client.Publish(t.topic, 0, false, payload)
			if !token.WaitTimeout(mqttPublishTimeout) {
				t.log.Warnf("publish event %d: timeout", e.Sequence)
				continue
			}
			if err := token.Error(); err != nil {
				t.log.Warnf("publish event %d: %v", e.Sequence, err)
			}
		}
	}
}

// Close stops the worker and disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.client.Disconnect(mqttQuiesceMillis)
	})
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
