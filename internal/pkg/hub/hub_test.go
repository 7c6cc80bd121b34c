package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/invisy/PitDetector/internal/pkg/hub"
	"github.com/invisy/PitDetector/internal/pkg/readings"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordingSubscriber) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSubscriber) received() [][]readings.StoredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := [][]readings.StoredRecord{}
	for _, p := range s.payloads {
		batch := []readings.StoredRecord{}
		json.Unmarshal(p, &batch)
		batches = append(batches, batch)
	}
	return batches
}

type failingSubscriber struct{}

func (failingSubscriber) Send(ctx context.Context, payload []byte) error {
	return errors.New("connection reset by peer")
}

type stalledSubscriber struct{}

func (stalledSubscriber) Send(ctx context.Context, payload []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

type ignoringSubscriber struct {
	release chan struct{}
}

func (s ignoringSubscriber) Send(ctx context.Context, payload []byte) error {
	<-s.release
	return nil
}

func records(ids ...uint) []readings.StoredRecord {
	result := []readings.StoredRecord{}
	for _, id := range ids {
		result = append(result, readings.StoredRecord{ID: id, RoadState: readings.Bump, Y: 3500})
	}
	return result
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := hub.New(time.Second)
	a, b := &recordingSubscriber{}, &recordingSubscriber{}
	h.Subscribe(a)
	h.Subscribe(b)

	h.Publish(records(1, 2, 3))

	for _, s := range []*recordingSubscriber{a, b} {
		batches := s.received()
		if len(batches) != 1 || len(batches[0]) != 3 {
			t.Fatalf("Unexpected deliveries: %v", batches)
		}
		for idx, id := range []uint{1, 2, 3} {
			if batches[0][idx].ID != id {
				t.Errorf("Records delivered out of order: %v", batches[0])
			}
		}
	}
}

func TestFailingSubscriberIsRemoved(t *testing.T) {
	h := hub.New(time.Second)
	a := &recordingSubscriber{}
	h.Subscribe(a)
	h.Subscribe(failingSubscriber{})

	h.Publish(records(1))

	if h.Len() != 1 {
		t.Errorf("Expected failing subscriber to be removed. %d subscribers left.", h.Len())
	}

	h.Publish(records(2))

	batches := a.received()
	if len(batches) != 2 || batches[1][0].ID != 2 {
		t.Errorf("Healthy subscriber did not receive both publishes: %v", batches)
	}
}

func TestStalledSubscriberDoesNotBlockPublish(t *testing.T) {
	h := hub.New(50 * time.Millisecond)
	a := &recordingSubscriber{}
	release := make(chan struct{})
	defer close(release)

	h.Subscribe(a)
	h.Subscribe(stalledSubscriber{})
	h.Subscribe(ignoringSubscriber{release: release})

	done := make(chan struct{})
	go func() {
		h.Publish(records(1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber.")
	}

	if h.Len() != 1 {
		t.Errorf("Expected stalled subscribers to be removed. %d subscribers left.", h.Len())
	}
	if len(a.received()) != 1 {
		t.Error("Healthy subscriber did not receive the publish.")
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	h := hub.New(time.Second)
	early := &recordingSubscriber{}
	h.Subscribe(early)

	h.Publish(records(1))

	late := &recordingSubscriber{}
	h.Subscribe(late)

	h.Publish(records(2))

	batches := late.received()
	if len(batches) != 1 || batches[0][0].ID != 2 {
		t.Errorf("Late subscriber received unexpected records: %v", batches)
	}
	if len(early.received()) != 2 {
		t.Error("Early subscriber did not receive both publishes.")
	}
}

func TestUnsubscribe(t *testing.T) {
	h := hub.New(time.Second)
	a := &recordingSubscriber{}
	handle := h.Subscribe(a)

	if !h.Unsubscribe(handle) {
		t.Error("Expected unsubscribe to report a removed subscriber.")
	}
	if h.Unsubscribe(handle) {
		t.Error("Expected second unsubscribe to be a no-op.")
	}

	h.Publish(records(1))

	if len(a.received()) != 0 {
		t.Error("Unsubscribed subscriber received a publish.")
	}
}

func TestConcurrentMembershipChangesAndPublish(t *testing.T) {
	h := hub.New(time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			handle := h.Subscribe(&recordingSubscriber{})
			h.Unsubscribe(handle)
		}()
		go func(id uint) {
			defer wg.Done()
			h.Publish(records(id))
		}(uint(i))
	}

	wg.Wait()

	if h.Len() != 0 {
		t.Errorf("Expected no subscribers after all unsubscribed, found %d", h.Len())
	}
}
