//Package hub keeps track of live subscribers and pushes committed records to them
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/invisy/PitDetector/internal/pkg/readings"
)

//DefaultSendTimeout bounds a single delivery attempt to one subscriber
const DefaultSendTimeout = 2 * time.Second

//Subscriber is a live delivery channel owned by a transport, such as a websocket
type Subscriber interface {
	Send(ctx context.Context, payload []byte) error
}

//Handle identifies a subscription in the hub
type Handle uuid.UUID

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

//Hub fans out committed records to every subscriber that is connected when they are published
type Hub struct {
	sendTimeout time.Duration

	// mu guards membership only and is never held while delivering
	mu          sync.RWMutex
	subscribers map[Handle]Subscriber
}

//New creates an empty hub. A non positive sendTimeout selects DefaultSendTimeout.
func New(sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}

	return &Hub{
		sendTimeout: sendTimeout,
		subscribers: map[Handle]Subscriber{},
	}
}

//Subscribe adds a subscriber to the live set and returns its handle
func (h *Hub) Subscribe(s Subscriber) Handle {
	handle := Handle(uuid.New())

	h.mu.Lock()
	h.subscribers[handle] = s
	count := len(h.subscribers)
	h.mu.Unlock()

	log.WithFields(log.Fields{"subscriber": handle.String(), "subscribers": count}).Info("Subscriber added.")

	return handle
}

//Unsubscribe removes the subscriber from the live set. It returns false if the handle was not subscribed.
func (h *Hub) Unsubscribe(handle Handle) bool {
	h.mu.Lock()
	_, ok := h.subscribers[handle]
	delete(h.subscribers, handle)
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		log.WithFields(log.Fields{"subscriber": handle.String(), "subscribers": count}).Info("Subscriber removed.")
	}

	return ok
}

//Len returns the number of live subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) snapshot() map[Handle]Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers := make(map[Handle]Subscriber, len(h.subscribers))
	for handle, s := range h.subscribers {
		subscribers[handle] = s
	}
	return subscribers
}

//Publish delivers the records, as one JSON array, to every current subscriber. Each delivery
//is attempted concurrently and bounded by the send timeout, independent of the caller's
//context. Subscribers that fail are removed. Publish returns once every attempt has
//completed or timed out.
func (h *Hub) Publish(records []readings.StoredRecord) {
	if len(records) == 0 {
		return
	}

	subscribers := h.snapshot()
	if len(subscribers) == 0 {
		return
	}

	payload, err := json.Marshal(records)
	if err != nil {
		log.Errorf("Failed to marshal %d records for subscribers: %s", len(records), err.Error())
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(subscribers))

	for handle, s := range subscribers {
		go func(handle Handle, s Subscriber) {
			defer wg.Done()
			h.deliver(handle, s, payload)
		}(handle, s)
	}

	wg.Wait()
}

func (h *Hub) deliver(handle Handle, s Subscriber, payload []byte) {
	sendCtx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- s.Send(sendCtx, payload)
	}()

	var err error
	select {
	case err = <-result:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}

	if err != nil {
		log.WithFields(log.Fields{"subscriber": handle.String()}).Warnf("Delivery failed, dropping subscriber: %s", err.Error())
		h.Unsubscribe(handle)
	}
}
