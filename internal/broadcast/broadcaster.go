// Package broadcast fans status events out to observers. Publishing never
// blocks on or fails because of a slow or dead subscriber; such
// subscribers are pruned.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/logger"
)

const subscriberBuffer = 16

// Subscription is one observer's handle on a source's status stream.
// Events arrive on C until Unsubscribe is called, after which C is
// closed.
type Subscription struct {
	C        <-chan models.StatusEvent
	sourceID string
	ch       chan models.StatusEvent
	b        *Broadcaster
	once     sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.remove(s.sourceID, s)
		close(s.ch)
	})
}

type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func New() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers interest in every subsequent status event for
// sourceID. There is no replay of earlier events.
func (b *Broadcaster) Subscribe(sourceID string) *Subscription {
	ch := make(chan models.StatusEvent, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, sourceID: sourceID, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sourceID] == nil {
		b.subs[sourceID] = make(map[*Subscription]struct{})
	}
	b.subs[sourceID][sub] = struct{}{}
	return sub
}

// Publish delivers event to every current subscriber for the source. A
// subscriber whose buffer is full is dropped and pruned; this is logged
// and never surfaces to the publisher.
func (b *Broadcaster) Publish(event models.StatusEvent) {
	b.mu.Lock()
	var dead []*Subscription
	for sub := range b.subs[event.SourceID] {
		select {
		case sub.ch <- event:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(b.subs[event.SourceID], sub)
	}
	b.mu.Unlock()

	if len(dead) > 0 {
		logger.Warn("Pruned unresponsive status subscribers",
			zap.String("source_id", event.SourceID),
			zap.Int("count", len(dead)),
		)
	}
}

// SubscriberCount reports how many observers a source currently has.
func (b *Broadcaster) SubscriberCount(sourceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sourceID])
}

func (b *Broadcaster) remove(sourceID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sourceID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sourceID)
		}
	}
}
