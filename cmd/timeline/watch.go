package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/client"
	"github.com/alfredjeanlab/livetimeline/internal/events"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow timeline updates as they arrive",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		interval, _ := cmd.Flags().GetDuration("interval")
		poll, _ := cmd.Flags().GetBool("poll")

		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		filter.Limit = 0

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		tw := newTailWriter(os.Stdout, filter)

		switch {
		case poll:
			return watchPoll(ctx, interval, tw)
		case natsURL != "":
			return watchNATS(ctx, natsURL, tw)
		default:
			return watchStream(ctx, tw)
		}
	},
}

func init() {
	addFilterFlags(watchCmd)
	watchCmd.Flags().String("nats-url", os.Getenv("TIMELINE_NATS_URL"), "follow NATS instead of the server's event stream [$TIMELINE_NATS_URL]")
	watchCmd.Flags().Bool("poll", false, "poll the list endpoint instead of streaming")
	watchCmd.Flags().Duration("interval", 5*time.Second, "poll interval with --poll")
}

// tailWriter prints each event the first time it is seen and again whenever
// its receivedAt moves forward.
type tailWriter struct {
	out    io.Writer
	filter model.EventFilter
	seen   map[string]time.Time
	now    func() time.Time
}

func newTailWriter(out io.Writer, filter model.EventFilter) *tailWriter {
	return &tailWriter{
		out:    out,
		filter: filter,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// add reports whether e was printed.
func (t *tailWriter) add(e *model.Event) bool {
	if prev, ok := t.seen[e.TaskID]; ok && !e.ReceivedAt.After(prev) {
		return false
	}
	t.seen[e.TaskID] = e.ReceivedAt
	if !t.filter.Match(e, t.now()) {
		return false
	}
	if jsonOutput {
		data, err := json.Marshal(e)
		if err != nil {
			return false
		}
		fmt.Fprintln(t.out, string(data))
		return true
	}
	printEventLine(t.out, e)
	return true
}

// addAll prints a snapshot oldest first.
func (t *tailWriter) addAll(list []*model.Event) {
	for i := len(list) - 1; i >= 0; i-- {
		t.add(list[i])
	}
}

func (t *tailWriter) status(st events.PollerStatus) {
	if jsonOutput {
		return
	}
	msg := fmt.Sprintf("poller %s", st.State)
	if st.LastError != "" {
		fmt.Fprintln(t.out, ui.RenderError(msg+": "+st.LastError))
		return
	}
	fmt.Fprintln(t.out, ui.RenderMuted(msg))
}

// watchStream follows the server's SSE stream, starting from a snapshot.
func watchStream(ctx context.Context, tw *tailWriter) error {
	topics := []string{events.TopicEventUpserted, events.TopicPollerStatus}
	return timelineClient.Stream(ctx, topics, true, func(ev client.StreamEvent) error {
		return tw.handleStreamEvent(ev)
	})
}

func (t *tailWriter) handleStreamEvent(ev client.StreamEvent) error {
	switch ev.Topic {
	case client.SnapshotTopic:
		var snap client.ListEventsResponse
		if err := json.Unmarshal(ev.Data, &snap); err != nil {
			return fmt.Errorf("decoding snapshot: %w", err)
		}
		t.addAll(snap.Events)
	case events.TopicEventUpserted:
		e, err := events.DecodeUpserted(ev.Data)
		if err != nil {
			return err
		}
		t.add(e)
	case events.TopicPollerStatus:
		var st events.PollerStatus
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			return fmt.Errorf("decoding poller status: %w", err)
		}
		t.status(st)
	}
	return nil
}

// watchNATS subscribes to upserts and status changes on the event bus.
func watchNATS(ctx context.Context, natsURL string, tw *tailWriter) error {
	// reconnectCh re-lists after a disconnect so missed upserts are printed.
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	upserts, cancelUpserts, err := events.SubscribeUpserts(sub, slog.Default())
	if err != nil {
		return fmt.Errorf("subscribing to upserts: %w", err)
	}
	defer cancelUpserts()

	statuses, cancelStatuses, err := sub.Subscribe(events.TopicPollerStatus)
	if err != nil {
		return fmt.Errorf("subscribing to poller status: %w", err)
	}
	defer cancelStatuses()

	if err := tw.refresh(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-upserts:
			if !ok {
				return nil
			}
			tw.add(e)
		case data, ok := <-statuses:
			if !ok {
				return nil
			}
			var st events.PollerStatus
			if err := json.Unmarshal(data, &st); err == nil {
				tw.status(st)
			}
		case <-reconnectCh:
			if err := tw.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

// watchPoll lists the timeline every interval and prints what changed.
func watchPoll(ctx context.Context, interval time.Duration, tw *tailWriter) error {
	for {
		if err := tw.refresh(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (t *tailWriter) refresh(ctx context.Context) error {
	resp, err := timelineClient.ListEvents(ctx, model.EventFilter{})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listing events: %w", err)
	}
	t.addAll(resp.Events)
	return nil
}
