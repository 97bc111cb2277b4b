package bus_test

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-vod/internal/bus"
	"github.com/tendant/simple-vod/pkg/schema"
)

func connect(t *testing.T) *bus.Client {
	t.Helper()
	url := os.Getenv("VOD_TEST_NATS_URL")
	if url == "" {
		t.Skip("VOD_TEST_NATS_URL not set")
	}
	client, err := bus.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestSinkPublishesJobEvents(t *testing.T) {
	client := connect(t)
	subject := "vod.test." + uuid.NewString()

	received := make(chan []byte, 1)
	if _, err := client.QueueSubscribeJSON(subject, "listeners", func(_ context.Context, data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sink := bus.NewSink(client, subject, "")
	if err := sink.PublishJobEvent(context.Background(), schema.JobEvent{ID: "evt-1", JobID: "job-1", Stage: schema.StageSubmitted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-received:
		var event schema.JobEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.JobID != "job-1" || event.Stage != schema.StageSubmitted {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestQueueSubscribeDeliversOnce(t *testing.T) {
	client := connect(t)
	subject := "vod.test." + uuid.NewString()

	deliveries := make(chan string, 4)
	for i := 0; i < 2; i++ {
		if _, err := client.QueueSubscribeJSON(subject, "workers", func(ctx context.Context, data []byte) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("handler context has no deadline")
			}
			deliveries <- string(data)
		}); err != nil {
			t.Fatalf("queue subscribe: %v", err)
		}
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := client.PublishJSON(subject, map[string]int{"n": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-deliveries:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	select {
	case extra := <-deliveries:
		t.Fatalf("message delivered twice: %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseWaitsForRunningHandlers(t *testing.T) {
	url := os.Getenv("VOD_TEST_NATS_URL")
	if url == "" {
		t.Skip("VOD_TEST_NATS_URL not set")
	}
	client, err := bus.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	subject := "vod.test." + uuid.NewString()

	started := make(chan struct{})
	var finished atomic.Bool
	if _, err := client.QueueSubscribeJSON(subject, "workers", func(context.Context, []byte) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		finished.Store(true)
	}); err != nil {
		t.Fatalf("queue subscribe: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := client.PublishJSON(subject, map[string]int{"n": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
	client.Close()
	if !finished.Load() {
		t.Fatal("Close returned while a handler was still running")
	}
}
