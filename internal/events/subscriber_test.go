package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// connectPair returns a publisher and subscriber on a fresh server.
func connectPair(t *testing.T) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("NewNATSSubscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestNATSSubscriber_DeliversPublishedEvent(t *testing.T) {
	pub, sub := connectPair(t)

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	want := &model.Event{ID: "e1", TaskID: "build-42", AgentID: "ci", Title: "Build", Status: model.StatusInProgress}
	if err := pub.Publish(context.Background(), TopicEventUpserted, EventUpserted{Event: want}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := DecodeUpserted(recv(t, ch))
	if err != nil {
		t.Fatalf("DecodeUpserted: %v", err)
	}
	if got.TaskID != want.TaskID || got.Status != want.Status || got.AgentID != want.AgentID {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNATSSubscriber_TopicFilter(t *testing.T) {
	pub, sub := connectPair(t)

	ch, cancel, err := sub.Subscribe(TopicPollerStatus)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	if err := pub.Publish(ctx, TopicEventUpserted, EventUpserted{Event: &model.Event{TaskID: "skip"}}); err != nil {
		t.Fatalf("Publish upsert: %v", err)
	}
	if err := pub.Publish(ctx, TopicPollerStatus, PollerStatus{State: "running", IsPolling: true}); err != nil {
		t.Fatalf("Publish status: %v", err)
	}

	msg := string(recv(t, ch))
	if msg != `{"state":"running","is_polling":true}` {
		t.Errorf("got %s, want the poller status only", msg)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra message %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	_, sub := connectPair(t)

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelUnderLoad(t *testing.T) {
	pub, sub := connectPair(t)

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = pub.conn.Publish(TopicEventUpserted, []byte(`{"event":{"task_id":"x"}}`))
		}
		pub.conn.Flush()
	}()

	cancel()
	<-done

	for range ch {
	}
}

func TestNATSSubscriber_CloseIsIdempotent(t *testing.T) {
	_, sub := connectPair(t)
	if _, _, err := sub.Subscribe(TopicAll); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSubscribeUpserts(t *testing.T) {
	pub, sub := connectPair(t)

	ch, cancel, err := SubscribeUpserts(sub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("SubscribeUpserts: %v", err)
	}
	defer cancel()

	// The malformed payload is skipped; the valid one comes through.
	_ = pub.conn.Publish(TopicEventUpserted, []byte(`{"event":null}`))
	if err := pub.Publish(context.Background(), TopicEventUpserted, EventUpserted{Event: &model.Event{TaskID: "deploy", Status: model.StatusSuccess}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-ch:
		if e.TaskID != "deploy" || e.Status != model.StatusSuccess {
			t.Errorf("got %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upsert")
	}

	cancel()
	for range ch {
	}
}

// stuckSubscriber never closes its channel, like a subscription whose
// upstream is still connected.
type stuckSubscriber struct {
	raw chan []byte
}

func (s *stuckSubscriber) Subscribe(string) (<-chan []byte, func(), error) {
	return s.raw, func() {}, nil
}

func (s *stuckSubscriber) Close() error { return nil }

func TestSubscribeUpserts_CancelWithoutReader(t *testing.T) {
	sub := &stuckSubscriber{raw: make(chan []byte, 1)}

	ch, cancel, err := SubscribeUpserts(sub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("SubscribeUpserts: %v", err)
	}

	// Feed more than the output buffer holds while nobody reads it.
	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go func() {
		for i := 0; i < 10; i++ {
			select {
			case sub.raw <- []byte(`{"event":{"id":"e1","agent_id":"a","task_id":"t","title":"x","status":"success"}}`):
			case <-stopFeed:
				return
			}
		}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	cancel()

	closed := make(chan struct{})
	go func() {
		for range ch {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("upsert channel not closed after cancel")
	}
}
