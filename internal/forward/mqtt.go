package forward

import (
	"context"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/core/model"
)

const mqttQoS = 1

// MQTTPublisher publishes each event on <topic>/<account>/<device>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to brokerURL. The client reconnects on its own
// after the first successful connection.
func NewMQTTPublisher(ctx context.Context, brokerURL, clientID, topic string, logger *zap.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to mqtt broker", zap.String("broker", brokerURL))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, errors.Wrap(err, "mqtt connect")
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, errors.Wrap(ctx.Err(), "mqtt connect")
	}
	return &MQTTPublisher{client: client, topic: strings.TrimSuffix(topic, "/")}, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Publish(ctx context.Context, ev *model.Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	token := p.client.Publish(mqttTopic(p.topic, ev), mqttQoS, false, payload)
	select {
	case <-token.Done():
		return errors.Wrap(token.Error(), "mqtt publish")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "mqtt publish")
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

func mqttTopic(base string, ev *model.Event) string {
	return base + "/" + ev.AccountID + "/" + ev.DeviceID
}
