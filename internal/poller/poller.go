// Package poller drives ingestion: it owns the connection to the configured
// queue backend, drains it, normalizes each payload and upserts the
// resulting records into the timeline.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/normalize"
	"github.com/alfredjeanlab/livetimeline/internal/queue"
)

// RetryDelay is the fixed wait after a failed fetch.
const RetryDelay = 5 * time.Second

// State is the lifecycle state of the poller.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Status is the connection status shown to the user. Only the most recent
// error is kept.
type Status struct {
	IsPolling bool   `json:"is_polling"`
	LastError string `json:"last_error,omitempty"`
}

// Upserter is the write side of the timeline.
type Upserter interface {
	Upsert(ctx context.Context, e *model.Event) (*model.Event, error)
}

// DialFunc builds a backend from settings. queue.Dial is the production value.
type DialFunc func(ctx context.Context, s config.Settings) (queue.Backend, error)

// Option configures a Poller.
type Option func(*Poller)

// WithRetryDelay overrides the wait after a failed fetch.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Poller) { p.retryDelay = d }
}

// WithIdleInterval overrides the settings' poll interval, bypassing its
// 5-60s clamp.
func WithIdleInterval(d time.Duration) Option {
	return func(p *Poller) { p.idleInterval = d }
}

// WithClock sets the time source handed to the normalizer.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Poller is the ingestion state machine: Idle -> Starting -> Running, and
// back to Idle on Stop or on a failed start.
type Poller struct {
	timeline     Upserter
	dial         DialFunc
	logger       *slog.Logger
	now          func() time.Time
	retryDelay   time.Duration
	idleInterval time.Duration

	mu       sync.Mutex
	state    State
	status   Status
	cancel   context.CancelFunc
	run      uint64 // incremented per Start; stale loops compare against it
	backend  string
	watchers []func(Status)

	// commitMu is held around each store write so Stop can wait for an
	// in-flight commit without waiting for a blocked receive.
	commitMu sync.Mutex
}

// New creates an idle poller writing into tl.
func New(tl Upserter, dial DialFunc, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		timeline:   tl,
		dial:       dial,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		retryDelay: RetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnStatus registers fn to be called after every status change.
func (p *Poller) OnStatus(fn func(Status)) {
	p.mu.Lock()
	p.watchers = append(p.watchers, fn)
	p.mu.Unlock()
}

// Status returns a snapshot of the connection status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start validates s, connects to the backend and begins polling in the
// background. It is a no-op unless the poller is Idle. Configuration and
// connection failures are recorded as the last error and returned.
func (p *Poller) Start(s config.Settings) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil
	}
	if err := s.Validate(); err != nil {
		p.status.LastError = err.Error()
		p.mu.Unlock()
		p.logger.Warn("poller not started", "err", err)
		p.emit()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.run++
	run := p.run
	p.cancel = cancel
	p.backend = s.Backend
	p.state = StateStarting
	p.status = Status{IsPolling: true}
	p.mu.Unlock()
	p.emit()

	b, err := p.dial(ctx, s)

	p.mu.Lock()
	if p.run != run || ctx.Err() != nil {
		// Stopped while connecting.
		p.mu.Unlock()
		cancel()
		if b != nil {
			b.Close()
		}
		return nil
	}
	if err != nil {
		ierr := &InitError{Backend: s.Backend, Err: err}
		p.state = StateIdle
		p.status = Status{LastError: ierr.Error()}
		p.cancel = nil
		p.mu.Unlock()
		cancel()
		p.logger.Error("poller connect failed", "backend", s.Backend, "err", err)
		p.emit()
		return ierr
	}
	p.state = StateRunning
	p.mu.Unlock()

	interval := p.idleInterval
	if interval == 0 {
		interval = s.Interval()
	}
	p.logger.Info("poller started", "backend", s.Backend, "interval", interval)
	go p.loop(ctx, run, b, interval)
	return nil
}

// Stop cancels the running loop and returns the poller to Idle. When Stop
// returns no further store writes from the stopped run will happen. A
// receive blocked in a long poll is abandoned, not awaited.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.run++
	p.state = StateIdle
	p.status.IsPolling = false
	p.mu.Unlock()

	// Wait out any in-flight commit; later commits see the cancelled context.
	p.commitMu.Lock()
	p.commitMu.Unlock()

	p.logger.Info("poller stopped")
	p.emit()
}

// Restart stops any running loop and starts again with s. Used when the
// settings file changes.
func (p *Poller) Restart(s config.Settings) error {
	p.Stop()
	return p.Start(s)
}

func (p *Poller) loop(ctx context.Context, run uint64, b queue.Backend, interval time.Duration) {
	defer b.Close()

	retry := backoff.NewConstantBackOff(p.retryDelay)
	longPoll := false
	if lp, ok := b.(queue.LongPoller); ok {
		longPoll = lp.LongPoll()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := b.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ferr := &FetchError{Backend: p.backendName(), Err: err}
			p.setError(run, ferr)
			p.logger.Warn("fetch failed", "backend", ferr.Backend, "err", err)
			if !sleep(ctx, retry.NextBackOff()) {
				return
			}
			continue
		}
		retry.Reset()

		if len(msgs) == 0 {
			if !longPoll && !sleep(ctx, interval) {
				return
			}
			continue
		}

		if p.processBatch(ctx, run, b, msgs) {
			p.clearError(run)
		}
	}
}

// processBatch handles each message in order and reports whether every one
// of them was committed and acknowledged.
func (p *Poller) processBatch(ctx context.Context, run uint64, b queue.Backend, msgs []*queue.Message) bool {
	clean := true
	for _, m := range msgs {
		if ctx.Err() != nil {
			return false
		}

		events, err := normalize.Normalize(m.Body, p.now())
		if err != nil {
			p.setError(run, err)
			p.logger.Warn("skipped malformed message", "message_id", m.ID, "err", err)
			clean = false
			continue
		}

		committed := true
		for _, e := range events {
			err := p.commit(ctx, e)
			if errors.Is(err, errStopped) {
				return false
			}
			if err != nil {
				p.setError(run, err)
				p.logger.Error("store write failed", "message_id", m.ID, "task_id", e.TaskID, "err", err)
				committed = false
				break
			}
		}
		if !committed {
			clean = false
			continue
		}

		if err := b.Ack(ctx, m); err != nil {
			if ctx.Err() != nil {
				return false
			}
			aerr := &AckError{MessageID: m.ID, Err: err}
			p.setError(run, aerr)
			p.logger.Warn("ack failed", "message_id", m.ID, "err", err)
			clean = false
		}
	}
	return clean
}

var errStopped = errors.New("poller stopped")

func (p *Poller) commit(ctx context.Context, e *model.Event) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if ctx.Err() != nil {
		return errStopped
	}
	_, err := p.timeline.Upsert(ctx, e)
	return err
}

func (p *Poller) backendName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend
}

func (p *Poller) setError(run uint64, err error) {
	p.mu.Lock()
	if p.run != run || p.status.LastError == err.Error() {
		p.mu.Unlock()
		return
	}
	p.status.LastError = err.Error()
	p.mu.Unlock()
	p.emit()
}

func (p *Poller) clearError(run uint64) {
	p.mu.Lock()
	if p.run != run || p.status.LastError == "" {
		p.mu.Unlock()
		return
	}
	p.status.LastError = ""
	p.mu.Unlock()
	p.emit()
}

func (p *Poller) emit() {
	p.mu.Lock()
	st := p.status
	watchers := make([]func(Status), len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(st)
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
