package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/internal/entity"
	"github.com/ds124wfegd/linktracker/internal/service"
	"github.com/ds124wfegd/linktracker/pkg/queue"
	"github.com/ds124wfegd/linktracker/pkg/rabbitMQ"
)

// Consumer is the receiving side of the click queue.
type Consumer interface {
	Consume(ctx context.Context, handler rabbitMQ.Handler) (<-chan struct{}, error)
}

// ClickConsumer moves queued clicks into the event store. A message is
// acknowledged only after the click has been written.
type ClickConsumer struct {
	consumer    Consumer
	linkService service.LinkService

	stored  atomic.Int64
	dropped atomic.Int64
}

func NewClickConsumer(consumer Consumer, linkService service.LinkService) *ClickConsumer {
	return &ClickConsumer{
		consumer:    consumer,
		linkService: linkService,
	}
}

// Start blocks until ctx is cancelled or the delivery channel closes.
func (w *ClickConsumer) Start(ctx context.Context) error {
	done, err := w.consumer.Consume(ctx, w.handle)
	if err != nil {
		return fmt.Errorf("start click consumer: %w", err)
	}
	logrus.Info("Click consumer started")

	<-done
	logrus.WithFields(logrus.Fields{
		"stored":  w.stored.Load(),
		"dropped": w.dropped.Load(),
	}).Info("Click consumer stopped")
	return nil
}

func (w *ClickConsumer) handle(ctx context.Context, body []byte) error {
	var msg entity.ClickMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.dropped.Add(1)
		return queue.Permanent(fmt.Errorf("decode click message: %w", err))
	}

	if err := w.linkService.StoreClick(ctx, &msg); err != nil {
		if queue.IsPermanent(err) {
			w.dropped.Add(1)
		}
		return err
	}

	w.stored.Add(1)
	logrus.WithField("code", msg.ShortCode).Debug("Click stored from queue")
	return nil
}

func (w *ClickConsumer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "click_consumer",
		"stored":      w.stored.Load(),
		"dropped":     w.dropped.Load(),
	}
}
