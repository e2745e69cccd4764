package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type message struct {
	UserID   snowflake.ID
	UserType string
	Title    string
	Body     string
	Category string
}

// Dispatcher decouples notification delivery from request handlers: Notify
// enqueues and returns immediately, a single worker drains the queue.
type Dispatcher struct {
	log   *zap.Logger
	sink  Sink
	queue chan message
	done  chan struct{}
}

func NewDispatcher(log *zap.Logger, sink Sink) *Dispatcher {
	return &Dispatcher{
		log:   log.Named("notification.dispatcher"),
		sink:  sink,
		queue: make(chan message, 256),
		done:  make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID snowflake.ID, userType, title, body, category string) {
	msg := message{
		UserID:   userID,
		UserType: userType,
		Title:    title,
		Body:     body,
		Category: category,
	}
	select {
	case d.queue <- msg:
	default:
		// Queue full. Dropping is acceptable for a best-effort sink.
		d.log.Warn("notification dropped",
			zap.String("user_id", userID.String()),
			zap.String("category", category),
		)
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) Stop(ctx context.Context) {
	close(d.queue)
	select {
	case <-d.done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.sink.Notify(ctx, msg.UserID, msg.UserType, msg.Title, msg.Body, msg.Category)
		cancel()
	}
}
