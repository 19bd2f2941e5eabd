package realtime

import (
	"context"
	"sync"
)

// Bus carries encoded frames from broadcasters to hubs, possibly across
// processes. *redis.PubSub satisfies this interface.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// LocalBus is an in-process Bus for single-node deployments.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{}
}

type localSub struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSub]struct{})}
}

// Publish hands payload to every subscriber of channel, waiting for slow
// subscribers rather than dropping.
func (b *LocalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	targets := make([]*localSub, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- payload:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel until ctx is
// done or cleanup is called.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	s := &localSub{ch: make(chan []byte, 64), done: make(chan struct{})}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*localSub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	cleanup := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], s)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(s.done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-s.done:
		}
	}()

	return s.ch, cleanup, nil
}
