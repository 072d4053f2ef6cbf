package ws

import (
	"context"

	"wabridge/internal/bus"
)

// Bridge forwards bus events onto hub rooms so ingestion publishes to the
// bus and never touches sockets directly.
type Bridge struct {
	bus    *bus.Bus
	hub    *Hub
	cancel context.CancelFunc
}

// NewBridge creates a bus-to-hub bridge.
func NewBridge(b *bus.Bus, hub *Hub) *Bridge {
	return &Bridge{bus: b, hub: hub}
}

// Start subscribes to real-time and instance events on the bus.
func (br *Bridge) Start(ctx context.Context) {
	ctx, br.cancel = context.WithCancel(ctx)
	rtCh, unsubRT := br.bus.Subscribe("rt.", 256)
	instCh, unsubInst := br.bus.Subscribe("instance.", 64)

	go func() {
		defer unsubRT()
		defer unsubInst()
		for {
			select {
			case evt := <-rtCh:
				br.forward(evt)
			case evt := <-instCh:
				br.hub.Publish(evt.Instance, EventPresenceUpdate, evt.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the bridge.
func (br *Bridge) Stop() {
	if br.cancel != nil {
		br.cancel()
	}
}

func (br *Bridge) forward(evt bus.Event) {
	switch evt.Kind {
	case "rt.message.new":
		br.hub.Publish(evt.Instance, EventNewMessage, evt.Payload)
	case "rt.conversation.updated":
		br.hub.Publish(evt.Instance, EventConversationUpdated, evt.Payload)
	case "rt.conversation.status":
		br.hub.Publish(evt.Instance, EventConversationStatus, evt.Payload)
	}
}
