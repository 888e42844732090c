package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/broadcast"
	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/logger"
)

// SourceGetter is the slice of the store the status socket needs.
type SourceGetter interface {
	GetSource(id string) (*models.Source, error)
}

// StatusSocketHandler streams status events for one source over a
// websocket. The connection first receives a snapshot of the source's
// current state, so a client that connects after ingestion finished
// still learns the outcome, then live events until it disconnects.
type StatusSocketHandler struct {
	store       SourceGetter
	broadcaster *broadcast.Broadcaster
}

func NewStatusSocketHandler(store SourceGetter, broadcaster *broadcast.Broadcaster) *StatusSocketHandler {
	return &StatusSocketHandler{
		store:       store,
		broadcaster: broadcaster,
	}
}

// openStream subscribes and then reads the snapshot, in that order, so a
// transition landing between the two is delivered on the subscription
// channel rather than lost. A transition landing before the snapshot
// read shows up twice, which clients tolerate.
func (h *StatusSocketHandler) openStream(sourceID string) (*broadcast.Subscription, models.StatusEvent, error) {
	sub := h.broadcaster.Subscribe(sourceID)
	src, err := h.store.GetSource(sourceID)
	if err != nil {
		sub.Unsubscribe()
		return nil, models.StatusEvent{}, err
	}
	snapshot := models.StatusEvent{
		SourceID:     src.ID,
		Status:       string(src.Status),
		ErrorMessage: src.ErrorMessage,
	}
	return sub, snapshot, nil
}

func (h *StatusSocketHandler) HandleConnection(c *websocket.Conn) {
	sourceID := c.Params("id")

	defer func() {
		c.Close()
		logger.Info("Status socket closed", zap.String("source_id", sourceID))
	}()

	if _, err := h.store.GetSource(sourceID); err != nil {
		c.WriteJSON(map[string]string{"error": "source not found"})
		return
	}

	logger.Info("Status socket opened", zap.String("source_id", sourceID))

	sub, snapshot, err := h.openStream(sourceID)
	if err != nil {
		return
	}
	defer sub.Unsubscribe()
	metrics.StatusSubscribers.Inc()
	defer metrics.StatusSubscribers.Dec()

	if err := c.WriteJSON(snapshot); err != nil {
		return
	}

	// The reader goroutine exists only to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
