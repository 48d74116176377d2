package gateway

import (
	"context"
	"sync"

	"garagechat/backend/internal/models"
)

// Outbox sends appends asynchronously while keeping them FIFO per room: a
// send reaches the service only after the previous send for the same room
// completed, so completions arrive in send order and tail-appending them
// never produces an out-of-order log. Sends to different rooms run in
// parallel. Send itself never blocks.
type Outbox struct {
	gw    Gateway
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewOutbox wraps gw.
func NewOutbox(gw Gateway) *Outbox {
	return &Outbox{
		gw:    gw,
		tails: make(map[string]chan struct{}),
	}
}

// Send queues an append for roomKey and calls done with the result from a
// separate goroutine. done for an earlier send of the same room always
// returns before done for a later one is called.
func (o *Outbox) Send(ctx context.Context, roomKey, receiverID, text string, done func(models.Message, error)) {
	o.mu.Lock()
	prev := o.tails[roomKey]
	mine := make(chan struct{})
	o.tails[roomKey] = mine
	o.mu.Unlock()

	go func() {
		defer func() {
			close(mine)
			o.mu.Lock()
			if o.tails[roomKey] == mine {
				delete(o.tails, roomKey)
			}
			o.mu.Unlock()
		}()

		if prev != nil {
			<-prev
		}
		msg, err := o.gw.AppendMessage(ctx, roomKey, receiverID, text)
		done(msg, err)
	}()
}

// Pending reports whether any send for roomKey is queued or in flight.
func (o *Outbox) Pending(roomKey string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.tails[roomKey]
	return ok
}
