package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "events:"

// RedisBridge relays events through Redis pub/sub so that multiple API
// instances see each other's publishes. Local subscribers still go through
// the in-process Broker; the bridge feeds remote publishes into it.
type RedisBridge struct {
	client *redis.Client
	local  *Broker
	cancel context.CancelFunc
}

type wireEvent struct {
	EntityID string `json:"entity_id"`
	Event    Event  `json:"event"`
}

// NewRedisBridge connects to Redis and starts relaying remote events into
// local. Events published through the bridge are not re-delivered locally
// by Publish; delivery happens when the subscription loop receives them.
func NewRedisBridge(redisURL string, local *Broker) (*RedisBridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	bridge := &RedisBridge{client: client, local: local, cancel: loopCancel}
	go bridge.receive(loopCtx)
	return bridge, nil
}

// Publish sends the event through Redis. Every instance subscribed to the
// events channel, including this one, relays it to local subscribers.
func (b *RedisBridge) Publish(entityID string, event Event) {
	payload, err := json.Marshal(wireEvent{EntityID: entityID, Event: event})
	if err != nil {
		log.Printf("broker: marshal event: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, channelPrefix+"all", payload).Err(); err != nil {
		log.Printf("broker: redis publish: %v", err)
		// Redis down: fall back to local delivery so this instance's
		// subscribers still see the event.
		b.local.Publish(entityID, event)
	}
}

// Subscribe registers a local subscriber. Remote events arrive through the
// relay loop, so subscribing on the bridge is the same as on the Broker.
func (b *RedisBridge) Subscribe(entityID string) chan Event {
	return b.local.Subscribe(entityID)
}

func (b *RedisBridge) Unsubscribe(entityID string, ch chan Event) {
	b.local.Unsubscribe(entityID, ch)
}

func (b *RedisBridge) receive(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+"all")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				log.Printf("broker: unmarshal event: %v", err)
				continue
			}
			b.local.Publish(we.EntityID, we.Event)
		}
	}
}

func (b *RedisBridge) Close() error {
	b.cancel()
	return b.client.Close()
}
