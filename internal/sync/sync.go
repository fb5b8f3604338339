package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// Destination is a backup target for snapshot exports.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores one complete JSONL export.
	Write(ctx context.Context, data []byte) error
}

// Source supplies the records to export. *timeline.Timeline implements it.
type Source interface {
	Snapshot() []*model.Event
}

// fingerprint summarises a snapshot. Records are never removed and every
// upsert moves receivedAt forward, so an unchanged fingerprint means an
// unchanged timeline.
type fingerprint struct {
	count  int
	latest time.Time
}

func fingerprintOf(events []*model.Event) fingerprint {
	fp := fingerprint{count: len(events)}
	for _, e := range events {
		if e.ReceivedAt.After(fp.latest) {
			fp.latest = e.ReceivedAt
		}
	}
	return fp
}

// Scheduler periodically exports the source's snapshot to every destination.
// A tick is skipped when nothing changed since the last fully successful
// export.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	last   fingerprint
	synced bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler exporting every interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start runs an export immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-progress export.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

// syncOnce exports the snapshot and reports whether it was written.
func (s *Scheduler) syncOnce(ctx context.Context) bool {
	events := s.source.Snapshot()
	fp := fingerprintOf(events)
	if s.synced && fp == s.last {
		s.logger.Debug("sync skipped, timeline unchanged", "events", fp.count)
		return false
	}

	var buf bytes.Buffer
	if err := ExportJSONL(events, &buf, s.now()); err != nil {
		s.logger.Error("sync export failed", "err", err)
		return false
	}
	data := buf.Bytes()

	failed := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
		}
	}

	// Retry next tick unless every destination has this export.
	s.synced = failed == 0
	s.last = fp

	s.logger.Info("sync completed",
		"destinations", len(s.destinations),
		"failed", failed,
		"events", len(events),
		"bytes", len(data),
	)
	return true
}
