// Package events implements the progress fan-out bus: a process-wide
// broadcast hub keyed by channel tag and, optionally, by user id, serving
// the backup/restore pipeline's progress events to many subscribers.
package events

import (
	"fmt"
	"sync"

	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/types"
)

// Subscriber receives broadcast events. Send must not block; a Subscriber
// that cannot keep up returns an error and is removed by the next sweep.
type Subscriber interface {
	Send(event *types.ProgressEvent) error
}

// ChannelSubscriber adapts a buffered Go channel to the Subscriber
// interface, matching the teacher's channel-based subscriber shape.
type ChannelSubscriber chan *types.ProgressEvent

// Send attempts a non-blocking delivery; a full buffer is reported as an
// error rather than silently dropped, so the bus can sweep the subscriber.
func (c ChannelSubscriber) Send(event *types.ProgressEvent) error {
	select {
	case c <- event:
		return nil
	default:
		return fmt.Errorf("subscriber buffer full")
	}
}

// NewChannelSubscriber returns a ChannelSubscriber with a 50-event
// per-subscriber buffer.
func NewChannelSubscriber() ChannelSubscriber {
	return make(ChannelSubscriber, 50)
}

// Bus is the process-wide broadcast hub. The union of per-channel
// subscriber sets always equals the set of live connections; the per-user
// set is a subset of that union.
type Bus struct {
	mu          sync.RWMutex
	channelSubs map[string]map[Subscriber]bool
	userSubs    map[string]map[Subscriber]bool
}

// NewBus constructs an empty fan-out hub.
func NewBus() *Bus {
	return &Bus{
		channelSubs: make(map[string]map[Subscriber]bool),
		userSubs:    make(map[string]map[Subscriber]bool),
	}
}

// Connect registers sub on channel and, if userID is non-empty, on that
// user's subscriber set too.
func (b *Bus) Connect(sub Subscriber, channel, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channelSubs[channel] == nil {
		b.channelSubs[channel] = make(map[Subscriber]bool)
	}
	b.channelSubs[channel][sub] = true

	if userID != "" {
		if b.userSubs[userID] == nil {
			b.userSubs[userID] = make(map[Subscriber]bool)
		}
		b.userSubs[userID][sub] = true
	}

	metrics.BusSubscribers.WithLabelValues(channel).Set(float64(len(b.channelSubs[channel])))
}

// Disconnect removes sub from channel and, if userID is non-empty, from
// that user's set. Idempotent.
func (b *Bus) Disconnect(sub Subscriber, channel, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub, channel, userID)
}

// removeLocked must be called with b.mu held.
func (b *Bus) removeLocked(sub Subscriber, channel, userID string) {
	if subs, ok := b.channelSubs[channel]; ok {
		delete(subs, sub)
		metrics.BusSubscribers.WithLabelValues(channel).Set(float64(len(subs)))
	}
	if userID != "" {
		if subs, ok := b.userSubs[userID]; ok {
			delete(subs, sub)
		}
	}
}

// removeFromAllLocked drops sub from every channel and user set; used by
// the sweep after a faulty send, since the caller may not know every
// channel/user a subscriber was registered under.
func (b *Bus) removeFromAllLocked(sub Subscriber) {
	for channel, subs := range b.channelSubs {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			metrics.BusSubscribers.WithLabelValues(channel).Set(float64(len(subs)))
		}
	}
	for _, subs := range b.userSubs {
		delete(subs, sub)
	}
}

// Broadcast delivers event to every subscriber on channel. Subscribers
// whose Send returns an error are swept after the full iteration completes,
// so one stalled subscriber never affects delivery to the others.
func (b *Bus) Broadcast(event *types.ProgressEvent, channel string) {
	b.mu.RLock()
	subs := b.channelSubs[channel]
	targets := make([]Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var faulty []Subscriber
	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			faulty = append(faulty, sub)
		}
	}

	if len(faulty) == 0 {
		return
	}

	metrics.BusDroppedEventsTotal.WithLabelValues(channel).Add(float64(len(faulty)))

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range faulty {
		b.removeFromAllLocked(sub)
	}
}

// BroadcastToUser delivers event to every subscriber registered under
// userID, with the same sweep-on-error semantics as Broadcast.
func (b *Bus) BroadcastToUser(event *types.ProgressEvent, userID string) {
	b.mu.RLock()
	subs := b.userSubs[userID]
	targets := make([]Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var faulty []Subscriber
	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			faulty = append(faulty, sub)
		}
	}
	if len(faulty) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range faulty {
		b.removeFromAllLocked(sub)
	}
}

// SubscriberCount returns the number of live subscribers on channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channelSubs[channel])
}
