// Package notify fans platform events out to external sinks.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"bot-core/internal/events"
	"bot-core/pkg/i18n"
)

// Notifier delivers one serialized event to an external sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event string, payload []byte) error
}

// Bridge subscribes to the event bus and forwards selected events to every
// configured notifier. Delivery is best-effort; a failing sink is logged and
// skipped, never retried.
type Bridge struct {
	bus   *events.Bus
	sinks []Notifier
}

// NewBridge creates a bridge over the given sinks.
func NewBridge(bus *events.Bus, sinks ...Notifier) *Bridge {
	return &Bridge{bus: bus, sinks: sinks}
}

// envelope is the wire shape every sink receives.
type envelope struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
	At      time.Time    `json:"at"`
}

// Start launches the forwarding loop for the given event types.
func (b *Bridge) Start(ctx context.Context, eventTypes ...events.Event) {
	if len(b.sinks) == 0 {
		return
	}
	for _, et := range eventTypes {
		ch, unsub := b.bus.Subscribe(et, 64)
		go func(et events.Event, ch <-chan any) {
			defer unsub()
			b.forward(ctx, et, ch)
		}(et, ch)
	}
	log.Printf(i18n.Get("NotifierBridgeStarted"), len(b.sinks))
}

func (b *Bridge) forward(ctx context.Context, event events.Event, ch <-chan any) {
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(envelope{Event: event, Payload: payload, At: time.Now()})
			if err != nil {
				continue
			}
			for _, sink := range b.sinks {
				if err := sink.Notify(ctx, string(event), data); err != nil {
					log.Printf(i18n.Get("NotifyPublishFailed"), sink.Name(), err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
