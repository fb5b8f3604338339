package events

import (
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// Subscriber receives notifications from the event bus.
type Subscriber interface {
	// Subscribe delivers raw payloads on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// SubscribeUpserts decodes TopicEventUpserted payloads from sub. Malformed
// payloads are logged and skipped. The returned channel closes when cancel
// is called, even if the reader stopped draining it, or when the underlying
// subscription ends.
func SubscribeUpserts(sub Subscriber, logger *slog.Logger) (<-chan *model.Event, func(), error) {
	raw, cancel, err := sub.Subscribe(TopicEventUpserted)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *model.Event, cap(raw))
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	go func() {
		defer close(out)
		for {
			var data []byte
			select {
			case d, ok := <-raw:
				if !ok {
					return
				}
				data = d
			case <-done:
				return
			}
			e, err := DecodeUpserted(data)
			if err != nil {
				logger.Warn("skipping malformed upsert notification", "err", err)
				continue
			}
			select {
			case out <- e:
			case <-done:
				return
			}
		}
	}()
	return out, stop, nil
}
