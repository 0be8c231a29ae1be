package events

import (
	"context"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const mqttTimeout = 5 * time.Second

// publisher is the part of an MQTT client the bridge needs.
type publisher interface {
	publish(topic string, payload []byte) error
	close()
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p *pahoPublisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return pkgerrors.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

func (p *pahoPublisher) close() {
	p.client.Disconnect(250)
}

// MQTTBridge mirrors hub events to an MQTT broker. An event named
// "session.complete" is published to "<prefix>/session/complete".
type MQTTBridge struct {
	hub    *EventHub
	prefix string
	pub    publisher
}

// NewMQTTBridge connects to broker (e.g. "tcp://localhost:1883").
func NewMQTTBridge(hub *EventHub, broker, prefix string) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("acuity-daemon").
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to mqtt broker %s", broker)
	}
	logrus.WithField("broker", broker).Info("connected to mqtt broker")

	return newBridge(hub, prefix, &pahoPublisher{client: client}), nil
}

func newBridge(hub *EventHub, prefix string, pub publisher) *MQTTBridge {
	return &MQTTBridge{hub: hub, prefix: strings.TrimSuffix(prefix, "/"), pub: pub}
}

// Topic returns the MQTT topic for an event name.
func (b *MQTTBridge) Topic(name string) string {
	t := strings.ReplaceAll(name, ".", "/")
	if b.prefix == "" {
		return t
	}
	return b.prefix + "/" + t
}

// Run forwards events until ctx is cancelled, then disconnects.
func (b *MQTTBridge) Run(ctx context.Context) {
	ch := b.hub.Subscribe()
	defer func() {
		b.hub.Unsubscribe(ch)
		b.pub.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			topic := b.Topic(ev.Name)
			if err := b.pub.publish(topic, ev.Data); err != nil {
				logrus.WithError(err).WithField("topic", topic).Warn("failed to publish event")
			}
		}
	}
}
