package messaging

import (
	"context"
	"sync"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/messaging/events"
	"github.com/invisy/PitDetector/internal/pkg/pipeline"
)

//enqueue hands a decoded batch to the pipeline, blocking while the queue is full
func enqueue(ctx context.Context, batches chan<- []commands.AgentData, body []byte) {
	batch, err := pipeline.DecodeBatch(body)
	if err != nil {
		log.Errorf("Failed to decode agent data: %s", err.Error())
		return
	}

	select {
	case batches <- batch:
	case <-ctx.Done():
		log.Warnf("Dropped batch of %d samples on shutdown.", len(batch))
	}
}

//CreateAgentDataReceiver is a closure that takes a batch queue and handles incoming agent data messages.
//Topic subscriptions are auto acked, so a batch that arrives after shutdown has begun is dropped.
func CreateAgentDataReceiver(ctx context.Context, batches chan<- []commands.AgentData) messaging.TopicMessageHandler {
	return func(msg amqp.Delivery) {
		log.Debugf("Message received from topic %s (%d bytes)", msg.RoutingKey, len(msg.Body))
		enqueue(ctx, batches, msg.Body)
	}
}

//TopicPublisher is the part of a messaging context that is needed to publish events
type TopicPublisher interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//EventPublisher publishes ProcessedAgentDataCreated events for every batch it is sent
type EventPublisher struct {
	mu        sync.Mutex
	publisher TopicPublisher
}

//NewEventPublisher creates a hub subscriber that republishes committed batches on the topic exchange
func NewEventPublisher(publisher TopicPublisher) *EventPublisher {
	return &EventPublisher{publisher: publisher}
}

//Send wraps the payload in an event and publishes it
func (p *EventPublisher) Send(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return p.publisher.PublishOnTopic(&events.ProcessedAgentDataCreated{Records: payload})
}
