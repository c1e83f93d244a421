// Package bus fans room notices out to connected sessions over a room-wide topic
// and one private topic per player.
package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/event"
)

// RoomTopic names the room-wide topic.
func RoomTopic(code string) string {
	return "room:" + code
}

// PlayerTopic names the private topic of one player.
func PlayerTopic(code, playerID string) string {
	return "player:" + code + ":" + playerID
}

// Mirror receives a copy of every room-topic notice after it has been encoded.
// Implementations must not block.
type Mirror interface {
	Mirror(code string, t event.Type, data []byte)
}

// Bus is an in-process pub/sub fan-out.
type Bus struct {
	logger *zap.Logger
	mirror Mirror

	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
}

// New creates an empty Bus. mirror may be nil.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger, mirror Mirror) *Bus {
	return &Bus{
		logger: logger,
		mirror: mirror,
		topics: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe adds sub to topic.
func (b *Bus) Subscribe(topic string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
}

// Unsubscribe removes sub from topic. It does not close sub.
func (b *Bus) Unsubscribe(topic string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(topic, sub)
}

// removeLocked drops sub from topic. Caller must hold b.mu.
func (b *Bus) removeLocked(topic string, sub *Subscriber) {
	subs, ok := b.topics[topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Subscribers returns how many subscribers topic has.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Publish encodes n once and pushes it to every subscriber of topic. A subscriber
// whose buffer is full is closed and dropped; its connection will be torn down by
// its writer.
//
// Postcondition: Returns an error only if n cannot be encoded.
func (b *Bus) Publish(topic string, n event.Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding %s notice: %w", n.Type, err)
	}
	b.deliver(topic, data)
	return nil
}

func (b *Bus) deliver(topic string, data []byte) {
	b.mu.RLock()
	var slow []*Subscriber
	for sub := range b.topics[topic] {
		if err := sub.Push(data); err != nil && !sub.IsClosed() {
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range slow {
		b.logger.Warn("dropping slow subscriber",
			zap.String("topic", topic),
			zap.String("subscriber", sub.ID()),
		)
		b.removeLocked(topic, sub)
		sub.Close()
	}
}

// PublishRoom sends n to everyone in the room and to the mirror.
func (b *Bus) PublishRoom(code string, n event.Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		b.logger.Error("encoding room notice", zap.String("room", code), zap.String("type", string(n.Type)), zap.Error(err))
		return
	}
	b.deliver(RoomTopic(code), data)
	if b.mirror != nil {
		b.mirror.Mirror(code, n.Type, data)
	}
}

// PublishPlayer sends n to one player's private topic.
func (b *Bus) PublishPlayer(code, playerID string, n event.Notice) {
	if err := b.Publish(PlayerTopic(code, playerID), n); err != nil {
		b.logger.Error("encoding player notice", zap.String("room", code), zap.String("type", string(n.Type)), zap.Error(err))
	}
}

// CloseRoom closes and removes every subscriber of the room topic and of every
// player topic of the room.
func (b *Bus) CloseRoom(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	roomTopic := RoomTopic(code)
	playerPrefix := "player:" + code + ":"
	for topic, subs := range b.topics {
		if topic != roomTopic && !strings.HasPrefix(topic, playerPrefix) {
			continue
		}
		for sub := range subs {
			sub.Close()
		}
		delete(b.topics, topic)
	}
}
