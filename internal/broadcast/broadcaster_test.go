package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbook/backend/internal/storage/models"
)

func recvEvent(t *testing.T, c <-chan models.StatusEvent) models.StatusEvent {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return models.StatusEvent{}
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()

	sub1 := b.Subscribe("src-1")
	defer sub1.Unsubscribe()
	sub2 := b.Subscribe("src-1")
	defer sub2.Unsubscribe()

	b.Publish(models.StatusEvent{SourceID: "src-1", Status: "processing"})

	assert.Equal(t, "processing", recvEvent(t, sub1.C).Status)
	assert.Equal(t, "processing", recvEvent(t, sub2.C).Status)
}

func TestPublishIsScopedToSource(t *testing.T) {
	b := New()

	other := b.Subscribe("src-2")
	defer other.Unsubscribe()

	b.Publish(models.StatusEvent{SourceID: "src-1", Status: "completed"})

	select {
	case ev := <-other.C:
		t.Fatalf("unexpected event for src-2: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New()
	// Must not block or panic.
	b.Publish(models.StatusEvent{SourceID: "nobody", Status: "failed"})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	sub := b.Subscribe("src-1")
	require.Equal(t, 1, b.SubscriberCount("src-1"))

	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount("src-1"))

	// Idempotent.
	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount("src-1"))
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()

	slow := b.Subscribe("src-1")
	defer slow.Unsubscribe()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer without draining it.
		for i := 0; i < 100; i++ {
			b.Publish(models.StatusEvent{SourceID: "src-1", Status: "processing"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestEventsArriveInOrder(t *testing.T) {
	b := New()

	sub := b.Subscribe("src-1")
	defer sub.Unsubscribe()

	statuses := []string{"acquiring", "processing", "completed"}
	for _, s := range statuses {
		b.Publish(models.StatusEvent{SourceID: "src-1", Status: s})
	}

	for _, want := range statuses {
		assert.Equal(t, want, recvEvent(t, sub.C).Status)
	}
}
