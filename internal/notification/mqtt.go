package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"hourmeter-backend/config"
	"hourmeter-backend/internal/maintenance"
)

var errPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the part of an MQTT client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout()) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// MQTTSink publishes every trigger as JSON to <prefix>/<machine id>.
type MQTTSink struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(client Publisher, topicPrefix string, qos byte, timeout time.Duration) *MQTTSink {
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimRight(topicPrefix, "/"),
		qos:     qos,
		timeout: timeout,
	}
}

// Topic returns the topic a machine's triggers are published on.
func (s *MQTTSink) Topic(machineID int64) string {
	return fmt.Sprintf("%s/%d", s.prefix, machineID)
}

// NotifyAlarmTriggered publishes the trigger and waits for the broker to accept it.
func (s *MQTTSink) NotifyAlarmTriggered(ctx context.Context, result maintenance.TriggerResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}

	token := s.client.Publish(s.Topic(result.MachineID), s.qos, false, payload)
	select {
	case <-token.Done():
	case <-time.After(s.timeout):
		return errPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.Topic(result.MachineID), err)
	}
	return nil
}
