package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/conveyor-rover/pkg/config"
	"github.com/ericogr/conveyor-rover/pkg/control"
	"github.com/ericogr/conveyor-rover/pkg/output"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "conveyor-rover"
	DefaultStateTopic = "rover"
	// publishes run inside the control cycle and must not outlast it
	publishTimeout   = 100 * time.Millisecond
	discoveryTimeout = 5 * time.Second
	// state sub-topics
	eventSuffix    = "event"
	movementSuffix = "movement"
	conveyorSuffix = "conveyor"
	payloadOn      = "ON"
	payloadOff     = "OFF"
	// discovery payload keys/values
	keyName           = "name"
	keyStateTopic     = "state_topic"
	keyUniqueID       = "unique_id"
	keyIcon           = "icon"
	keyPayloadOn      = "payload_on"
	keyPayloadOff     = "payload_off"
	keyDeviceClass    = "device_class"
	deviceClassMoving = "moving"
	iconMovement      = "mdi:robot-mower"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTOutput struct {
	client         mqtt.Client
	stateTopic     string
	discoveryTopic string
	timeout        time.Duration
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true).
		SetWriteTimeout(publishTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	st := stateTopic(cfg.StateTopic)
	// the broker reports the rover offline if the connection drops
	opts.SetWill(subTopic(st, movementSuffix), "OFFLINE", 0, true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: st, discoveryTopic: cfg.DiscoveryTopic, timeout: publishTimeout}

	// Publish Home Assistant discovery payloads if requested. The discovery
	// topic must contain a %s formatter for the entity (movement, conveyor).
	if m.discoveryTopic != "" {
		if !strings.Contains(m.discoveryTopic, "%s") {
			log.Printf("mqtt discovery topic %q has no %%s formatter, skipping discovery", m.discoveryTopic)
		} else {
			for entity, payload := range discoveryPayloads(cfg, st) {
				if err := publishJSON(client, fmt.Sprintf(m.discoveryTopic, entity), true, payload, discoveryTimeout); err != nil {
					log.Printf("mqtt discovery publish error: %v", err)
				}
			}
		}
	}

	return m, nil
}

// Publish sends the event as JSON and updates the retained movement and
// conveyor state topics.
func (m *MQTTOutput) Publish(e control.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := m.PublishRaw(subTopic(m.stateTopic, eventSuffix), b, false); err != nil {
		return err
	}
	topic, payload, ok := retainedState(m.stateTopic, e)
	if !ok {
		return nil
	}
	return m.PublishRaw(topic, []byte(payload), true)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery and state messages. It gives up
// with ErrPublishTimeout when the broker does not take the message in time.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	timeout := m.timeout
	if timeout <= 0 {
		timeout = publishTimeout
	}
	return waitToken(m.client.Publish(topic, 0, retained, payload), topic, timeout)
}

// helper: retained topic and payload that reflect the event's new state
func retainedState(base string, e control.Event) (string, string, bool) {
	switch e.Kind {
	case control.EventDrive:
		return subTopic(base, movementSuffix), string(e.Action), true
	case control.EventConveyorStart:
		return subTopic(base, conveyorSuffix), payloadOn, true
	case control.EventConveyorStop:
		return subTopic(base, conveyorSuffix), payloadOff, true
	}
	return "", "", false
}

func stateTopic(base string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return DefaultStateTopic
	}
	return base
}

func subTopic(base, suffix string) string {
	return base + "/" + suffix
}

// helper: human-friendly discovery name
func discoveryName(cfg config.MQTTConfig, entity string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("Rover %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, entity)
}

// helper: unique id for discovery, suffixed with the entity
func discoveryUniqueID(cfg config.MQTTConfig, entity string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, entity)
}

// helper: discovery payloads keyed by entity
func discoveryPayloads(cfg config.MQTTConfig, base string) map[string]map[string]interface{} {
	movement := map[string]interface{}{
		keyName:       discoveryName(cfg, movementSuffix),
		keyStateTopic: subTopic(base, movementSuffix),
		keyIcon:       iconMovement,
	}
	conveyor := map[string]interface{}{
		keyName:        discoveryName(cfg, conveyorSuffix),
		keyStateTopic:  subTopic(base, conveyorSuffix),
		keyPayloadOn:   payloadOn,
		keyPayloadOff:  payloadOff,
		keyDeviceClass: deviceClassMoving,
	}
	if uid := discoveryUniqueID(cfg, movementSuffix); uid != "" {
		movement[keyUniqueID] = uid
	}
	if uid := discoveryUniqueID(cfg, conveyorSuffix); uid != "" {
		conveyor[keyUniqueID] = uid
	}
	return map[string]map[string]interface{}{
		movementSuffix: movement,
		conveyorSuffix: conveyor,
	}
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}, timeout time.Duration) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return waitToken(client.Publish(topic, 0, retained, b), topic, timeout)
}

// helper: bounded wait on a publish token
func waitToken(token mqtt.Token, topic string, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %s after %s", ErrPublishTimeout, topic, timeout)
	}
	return token.Error()
}
