package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	topics "github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/invisy/PitDetector/internal/pkg/messaging"
	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/readings"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

const agentData = `{"accelerometer":{"x":0,"y":3500,"z":0},"gps":{"latitude":10.0,"longitude":20.0},"timestamp":"2024-01-01T00:00:00"}`

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestAgentDataReceiverEnqueuesBatch(t *testing.T) {
	batches := make(chan []commands.AgentData, 1)
	receiver := messaging.CreateAgentDataReceiver(context.Background(), batches)

	receiver(amqp.Delivery{RoutingKey: "agent-data", Body: []byte("[" + agentData + "," + agentData + "]")})

	select {
	case batch := <-batches:
		if len(batch) != 2 || batch[1].Accelerometer.Y != 3500 {
			t.Errorf("Unexpected batch enqueued: %+v", batch)
		}
	default:
		t.Error("No batch was enqueued.")
	}
}

func TestAgentDataReceiverDropsMalformedMessages(t *testing.T) {
	batches := make(chan []commands.AgentData, 1)
	receiver := messaging.CreateAgentDataReceiver(context.Background(), batches)

	receiver(amqp.Delivery{Body: []byte("this is not json")})

	if len(batches) != 0 {
		t.Error("A malformed message was enqueued.")
	}
}

func TestReceiverDoesNotBlockAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batches := make(chan []commands.AgentData)
	receiver := messaging.CreateAgentDataReceiver(ctx, batches)

	receiver(amqp.Delivery{Body: []byte(agentData)})
}

func TestMQTTMessageHandlerEnqueuesSingleSample(t *testing.T) {
	batches := make(chan []commands.AgentData, 1)
	handler := messaging.CreateAgentDataMessageHandler(context.Background(), batches)

	handler(nil, fakeMessage{topic: "agent", payload: []byte(agentData)})

	select {
	case batch := <-batches:
		if len(batch) != 1 || batch[0].GPS.Longitude != 20.0 {
			t.Errorf("Unexpected batch enqueued: %+v", batch)
		}
	default:
		t.Error("No batch was enqueued.")
	}
}

type fakeContext struct {
	err       error
	published []topics.TopicMessage
}

func (c *fakeContext) PublishOnTopic(message topics.TopicMessage) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, message)
	return nil
}

func TestEventPublisherWrapsRecords(t *testing.T) {
	broker := &fakeContext{}
	publisher := messaging.NewEventPublisher(broker)

	payload, _ := json.Marshal([]readings.StoredRecord{{ID: 7, RoadState: readings.Pothole}})

	if err := publisher.Send(context.Background(), payload); err != nil {
		t.Fatalf("Failed to publish event: %s", err.Error())
	}

	if len(broker.published) != 1 || broker.published[0].TopicName() != "events-processedagentdatacreated" {
		t.Fatalf("Unexpected publications: %v", broker.published)
	}

	body, _ := json.Marshal(broker.published[0])
	evt := struct {
		Records []readings.StoredRecord `json:"records"`
	}{}
	json.Unmarshal(body, &evt)

	if len(evt.Records) != 1 || evt.Records[0].ID != 7 || evt.Records[0].RoadState != readings.Pothole {
		t.Errorf("Unexpected event body: %s", string(body))
	}
}

func TestEventPublisherReportsFailures(t *testing.T) {
	publisher := messaging.NewEventPublisher(&fakeContext{err: errors.New("channel closed")})

	if err := publisher.Send(context.Background(), []byte("[]")); err == nil {
		t.Error("Expected publish failure to be returned.")
	}
}

func TestEventPublisherSkipsCancelledSends(t *testing.T) {
	broker := &fakeContext{}
	publisher := messaging.NewEventPublisher(broker)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.Send(cancelled, []byte("[]")); err == nil || len(broker.published) != 0 {
		t.Error("Expected a cancelled send to be rejected without publishing.")
	}
}

func TestMQTTClientOptionsDoNotSerializeHandlers(t *testing.T) {
	opts := messaging.NewMQTTClientOptions(messaging.MQTTConfig{Host: "broker", Port: 1883, ClientID: "road-store"})

	if opts.Order {
		t.Error("Expected handlers to run without blocking the MQTT dispatch loop.")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker:1883" {
		t.Errorf("Unexpected broker address: %v", opts.Servers)
	}
}
