package bot

import (
	"context"

	"go.uber.org/zap"

	"wabridge/internal/bus"
	"wabridge/internal/normalize"
	"wabridge/internal/outbound"
	"wabridge/internal/store"
)

// Engine subscribes to inbound customer messages on the bus, asks the
// responder for a reply, and dispatches it. The customer never goes
// unanswered: a responder failure substitutes the fallback reply.
type Engine struct {
	db          *store.DB
	responder   Responder
	dispatcher  *outbound.Dispatcher
	bus         *bus.Bus
	attribution string
	fallback    string
	logger      *zap.Logger
	cancel      context.CancelFunc
}

// NewEngine creates a bot engine.
func NewEngine(db *store.DB, responder Responder, dispatcher *outbound.Dispatcher, b *bus.Bus, attribution, fallback string, logger *zap.Logger) *Engine {
	return &Engine{
		db:          db,
		responder:   responder,
		dispatcher:  dispatcher,
		bus:         b,
		attribution: attribution,
		fallback:    fallback,
		logger:      logger,
	}
}

// Start subscribes to inbound message events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("message.received", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	msg, ok := evt.Payload.(store.Message)
	if !ok {
		return
	}
	// Only customer text warrants a reply; media-only messages carry no
	// prompt for the responder.
	if msg.FromMe || msg.SenderType != normalize.SenderClient || msg.Body == "" {
		return
	}

	inst, err := e.db.GetInstance(evt.Instance)
	if err != nil || inst == nil {
		e.logger.Error("bot cannot resolve instance",
			zap.Error(err), zap.String("instance", evt.Instance))
		return
	}

	reply, err := e.responder.Reply(ctx, msg.Sender, msg.Body)
	if err != nil || reply == "" {
		e.logger.Warn("responder failed, using fallback reply",
			zap.Error(err), zap.String("chat", msg.ChatID))
		reply = e.fallback
	}

	if _, err := e.dispatcher.Send(ctx, inst, msg.ChatID, reply, e.attribution, normalize.SenderAI); err != nil {
		e.logger.Error("failed to dispatch bot reply",
			zap.Error(err), zap.String("chat", msg.ChatID), zap.String("instance", inst.Name))
	}
}
