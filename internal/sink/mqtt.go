// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig selects the broker readings are published to
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // tcp://host:1883
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"` // prefix, sensor id is appended
	QoS      byte   `yaml:"qos"`
}

// MQTT publishes each reading as JSON on <topic>/<sensor id>
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// OpenMQTT connects to the broker
func OpenMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "solstice-gateway"
	}
	if cfg.Topic == "" {
		cfg.Topic = "solstice/readings"
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.QoS)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return &MQTT{client: client, cfg: cfg}, nil
}

// readingTopic is the topic r is published on
func readingTopic(prefix string, r Reading) string {
	return fmt.Sprintf("%s/%d", strings.TrimRight(prefix, "/"), r.SensorID)
}

// Store publishes r and waits for the broker (or ctx)
func (m *MQTT) Store(ctx context.Context, r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	topic := readingTopic(m.cfg.Topic, r)
	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
