package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/alfredjeanlab/livetimeline/internal/events"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/poller"
	"github.com/alfredjeanlab/livetimeline/internal/presence"
	"github.com/alfredjeanlab/livetimeline/internal/timeline"
)

// PollerControl is the part of *poller.Poller the API drives.
type PollerControl interface {
	Start(s config.Settings) error
	Stop()
	Status() poller.Status
	State() poller.State
	OnStatus(fn func(poller.Status))
}

// SettingsFunc returns the current queue settings. It is called on every
// start so edits to the settings file take effect on reconnect.
type SettingsFunc func() (config.Settings, error)

// TimelineServer serves the read-only timeline and poller controls over
// HTTP, and fans committed upserts out to NATS and SSE clients.
type TimelineServer struct {
	timeline  *timeline.Timeline
	poller    PollerControl
	settings  SettingsFunc
	publisher events.Publisher
	sseHub    *sseHub
	logger    *slog.Logger
	now       func() time.Time

	// Presence is the agent roster, fed by every committed upsert.
	Presence *presence.Tracker

	unsubscribe func()
}

// NewTimelineServer wires tl and p to the given publisher. Call Close to
// detach from the timeline.
func NewTimelineServer(tl *timeline.Timeline, p PollerControl, settings SettingsFunc, pub events.Publisher, logger *slog.Logger) *TimelineServer {
	s := &TimelineServer{
		timeline:  tl,
		poller:    p,
		settings:  settings,
		publisher: pub,
		sseHub:    newSSEHub(),
		logger:    logger,
		now:       time.Now,
		Presence:  presence.New(),
	}
	for _, e := range tl.Snapshot() {
		s.Presence.Record(e)
	}
	s.unsubscribe = tl.Subscribe(func(e *model.Event) {
		s.Presence.Record(e)
		s.publish(context.Background(), events.TopicEventUpserted, events.EventUpserted{Event: e})
	})
	p.OnStatus(func(st poller.Status) {
		s.publish(context.Background(), events.TopicPollerStatus, s.pollerStatus(st))
	})
	return s
}

// Close stops forwarding timeline changes and the roster reaper.
func (s *TimelineServer) Close() {
	s.unsubscribe()
	s.Presence.Stop()
}

func (s *TimelineServer) pollerStatus(st poller.Status) events.PollerStatus {
	return events.PollerStatus{
		State:     s.poller.State().String(),
		IsPolling: st.IsPolling,
		LastError: st.LastError,
	}
}

// publish sends event to NATS and to connected SSE clients. Failures are
// logged and never reach the caller.
func (s *TimelineServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "err", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
