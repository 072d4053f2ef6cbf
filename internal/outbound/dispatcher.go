// Package outbound dispatches operator and bot replies through the provider
// and records them in the canonical store.
package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wabridge/internal/bus"
	"wabridge/internal/normalize"
	"wabridge/internal/provider"
	"wabridge/internal/store"
)

// TextSender sends a text message for an instance and returns the
// provider-assigned message id, which may be empty.
type TextSender interface {
	SendText(ctx context.Context, inst *store.Instance, chatID, text string) (string, error)
}

// CacheSender is the production TextSender backed by the shared client cache.
type CacheSender struct {
	clients *provider.Cache
}

// NewCacheSender wraps the provider client cache as a TextSender.
func NewCacheSender(clients *provider.Cache) *CacheSender {
	return &CacheSender{clients: clients}
}

// SendText implements TextSender.
func (s *CacheSender) SendText(ctx context.Context, inst *store.Instance, chatID, text string) (string, error) {
	return s.clients.Get(inst.BaseURL, inst.APIKey).SendText(ctx, inst.Name, chatID, text)
}

// Dispatcher sends messages and writes them back as outbound history.
type Dispatcher struct {
	db     *store.DB
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
}

// NewDispatcher creates an outbound dispatcher.
func NewDispatcher(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{db: db, sender: sender, bus: b, logger: logger}
}

// Send labels the text with its attribution, sends it through the provider,
// and records the message. A provider failure fails the whole dispatch: no
// history is written for a message that was never actually sent.
func (d *Dispatcher) Send(ctx context.Context, inst *store.Instance, chatID, text, attribution, senderType string) (*store.Message, error) {
	if senderType == "" {
		senderType = normalize.SenderSupport
	}
	labeled := text
	if attribution != "" {
		labeled = fmt.Sprintf("*%s:*\n%s", attribution, text)
	}

	providerID, err := d.sender.SendText(ctx, inst, chatID, labeled)
	if err != nil {
		return nil, fmt.Errorf("send text: %w", err)
	}

	msgID := providerID
	if msgID == "" {
		msgID = "local-" + uuid.New().String()
	}

	msg := store.Message{
		Instance:    inst.Name,
		MsgID:       msgID,
		ChatID:      chatID,
		Sender:      attribution,
		SenderName:  attribution,
		SenderType:  senderType,
		Body:        labeled,
		MessageType: "text",
		FromMe:      true,
		Status:      "sent",
		Timestamp:   time.Now().UnixMilli(),
	}

	// The webhook echo for our own send may have won the race; the
	// first-seen copy stands either way.
	if _, err := d.db.InsertMessageIfAbsent(&msg); err != nil {
		d.logger.Error("failed to record outbound message",
			zap.Error(err), zap.String("msg_id", msgID), zap.String("instance", inst.Name))
		return &msg, nil
	}
	if err := d.db.TouchChatLastMessage(inst.Name, chatID, labeled, senderType, msg.Timestamp); err != nil {
		d.logger.Error("failed to touch chat after send",
			zap.Error(err), zap.String("chat", chatID), zap.String("instance", inst.Name))
	}

	now := time.Now()
	d.bus.Publish(bus.Event{Kind: "rt.message.new", Instance: inst.Name, Timestamp: now, Payload: msg})
	d.bus.Publish(bus.Event{Kind: "rt.conversation.updated", Instance: inst.Name, Timestamp: now, Payload: map[string]any{
		"chatId":             chatID,
		"lastMessageAt":      msg.Timestamp,
		"lastMessagePreview": labeled,
		"lastMessageSender":  senderType,
	}})

	d.logger.Info("message dispatched",
		zap.String("instance", inst.Name), zap.String("chat", chatID), zap.String("msg_id", msgID))
	return &msg, nil
}
