package messaging

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
)

//MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
}

//NewMQTTClientOptions configures a client for the broker the agents publish to. Handlers are not
//ordered so that a full ingest queue does not stall the client's keepalive handling.
func NewMQTTClientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Infof("Connected to MQTT broker %s.", broker)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warnf("Connection to MQTT broker %s lost: %s", broker, err.Error())
	})

	return opts
}

//NewMQTTClient connects to the MQTT broker the agents publish to
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	opts := NewMQTTClientOptions(cfg)
	broker := opts.Servers[0].String()

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}

	return client, nil
}

//CreateAgentDataMessageHandler is a closure that takes a batch queue and handles incoming MQTT agent data messages
func CreateAgentDataMessageHandler(ctx context.Context, batches chan<- []commands.AgentData) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		log.Debugf("MQTT message received from topic %s (%d bytes)", msg.Topic(), len(msg.Payload()))
		enqueue(ctx, batches, msg.Payload())
	}
}

//SubscribeAgentData subscribes the handler to the agent topic
func SubscribeAgentData(client mqtt.Client, topic string, handler mqtt.MessageHandler) error {
	token := client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	log.Infof("Subscribed to MQTT topic %s.", topic)

	return nil
}
