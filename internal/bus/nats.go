// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-vod/pkg/schema"
)

// Default subjects.
const (
	SubjectEvents     = "vod.events"
	SubjectJobEvents  = "vod.jobs.events"
	SubjectDeadLetter = "vod.events.deadletter"
)

// HandlerTimeout bounds every message callback.
const HandlerTimeout = 30 * time.Second

// DrainTimeout bounds how long Close waits for in-flight handlers.
const DrainTimeout = HandlerTimeout + 5*time.Second

type Client struct {
	nc     *nats.Conn
	closed chan struct{}
}

func Connect(url string) (*Client, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("simple-vod"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DrainTimeout(DrainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, closed: closed}, nil
}

// Close drains every subscription and waits until the handlers already
// running have returned and pending publishes are flushed.
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
	select {
	case <-c.closed:
	case <-time.After(DrainTimeout + time.Second):
	}
}

// Flush round-trips to the server so earlier subscriptions are active.
func (c *Client) Flush() error {
	return c.nc.Flush()
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// QueueSubscribeJSON runs handler for every message on subject, with one
// member of the queue group receiving each message. Every call gets a context
// bounded by HandlerTimeout.
func (c *Client) QueueSubscribeJSON(subject, queue string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
		defer cancel()
		handler(ctx, msg.Data)
	})
}

// Sink publishes job events and dead letters.
type Sink struct {
	client            *Client
	eventSubject      string
	deadLetterSubject string
}

// NewSink binds subjects to client. Empty subjects fall back to the defaults.
func NewSink(client *Client, eventSubject, deadLetterSubject string) *Sink {
	if eventSubject == "" {
		eventSubject = SubjectJobEvents
	}
	if deadLetterSubject == "" {
		deadLetterSubject = SubjectDeadLetter
	}
	return &Sink{client: client, eventSubject: eventSubject, deadLetterSubject: deadLetterSubject}
}

func (s *Sink) PublishJobEvent(_ context.Context, event schema.JobEvent) error {
	return s.client.PublishJSON(s.eventSubject, event)
}

func (s *Sink) PublishDeadLetter(_ context.Context, letter schema.DeadLetter) error {
	return s.client.PublishJSON(s.deadLetterSubject, letter)
}
