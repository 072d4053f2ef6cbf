package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wabridge/internal/bus"
	"wabridge/internal/normalize"
	"wabridge/internal/provider"
	"wabridge/internal/status"
	"wabridge/internal/store"
)

func (r *Router) handleMessagesUpsert(instance string, data json.RawMessage) error {
	raws, err := decodeMessages(data)
	if err != nil {
		return fmt.Errorf("decode messages.upsert: %w", err)
	}

	for _, raw := range raws {
		msg := normalize.MapMessage(raw, "", instance)
		if msg.MsgID == "" || msg.ChatID == "" {
			continue
		}
		if payload, err := json.Marshal(raw); err == nil {
			msg.RawPayload = string(payload)
		}

		inserted, err := r.db.InsertMessageIfAbsent(&msg)
		if err != nil {
			return fmt.Errorf("insert message %q: %w", msg.MsgID, err)
		}
		if !inserted {
			// Redelivery; the first-seen copy already fanned out.
			continue
		}

		preview := normalize.Preview(raw.Message)
		if err := r.db.TouchChatLastMessage(instance, msg.ChatID, preview, msg.SenderType, msg.Timestamp); err != nil {
			return fmt.Errorf("touch chat %q: %w", msg.ChatID, err)
		}

		now := time.Now()
		r.bus.Publish(bus.Event{Kind: "rt.message.new", Instance: instance, Timestamp: now, Payload: msg})
		r.bus.Publish(bus.Event{Kind: "rt.conversation.updated", Instance: instance, Timestamp: now, Payload: chatSummary{
			ChatID:             msg.ChatID,
			LastMessageAt:      msg.Timestamp,
			LastMessagePreview: preview,
			LastMessageSender:  msg.SenderType,
		}})
		if msg.SenderType == normalize.SenderClient {
			r.bus.Publish(bus.Event{Kind: "message.received", Instance: instance, Timestamp: now, Payload: msg})
		}
	}
	return nil
}

func (r *Router) handleMessagesUpdate(instance string, data json.RawMessage) error {
	var updates []normalize.RawMessageUpdate
	if err := decodeOneOrMany(data, &updates); err != nil {
		return fmt.Errorf("decode messages.update: %w", err)
	}

	for _, u := range updates {
		msgID := u.KeyID
		if msgID == "" {
			msgID = u.Key.ID
		}
		if msgID == "" {
			continue
		}
		if err := r.db.UpdateMessageStatus(instance, msgID, u.Status); err != nil {
			return fmt.Errorf("update message status %q: %w", msgID, err)
		}
		chatID := u.RemoteJid
		if chatID == "" {
			chatID = u.Key.RemoteJid
		}
		r.bus.Publish(bus.Event{Kind: "rt.conversation.status", Instance: instance, Timestamp: time.Now(), Payload: map[string]string{
			"chatId": chatID,
			"msgId":  msgID,
			"status": u.Status,
		}})
	}
	return nil
}

func (r *Router) handleChatsUpsert(instance string, data json.RawMessage) error {
	var raws []normalize.RawChat
	if err := decodeOneOrMany(data, &raws); err != nil {
		return fmt.Errorf("decode chats.upsert: %w", err)
	}

	for _, raw := range raws {
		chat := normalize.MapChat(raw, instance)
		if chat.ChatID == "" {
			continue
		}
		if err := r.db.UpsertChat(&chat); err != nil {
			return fmt.Errorf("upsert chat %q: %w", chat.ChatID, err)
		}
		r.bus.Publish(bus.Event{Kind: "rt.conversation.updated", Instance: instance, Timestamp: time.Now(), Payload: chatSummary{
			ChatID:             chat.ChatID,
			UnreadCount:        chat.UnreadCount,
			LastMessageAt:      chat.LastMessageAt,
			LastMessagePreview: chat.LastMessagePreview,
			LastMessageSender:  chat.LastMessageSender,
		}})
	}
	return nil
}

func (r *Router) handleContactsUpsert(instance string, data json.RawMessage) error {
	var raws []normalize.RawContact
	if err := decodeOneOrMany(data, &raws); err != nil {
		return fmt.Errorf("decode contacts.upsert: %w", err)
	}

	contacts := make([]store.Contact, 0, len(raws))
	for _, raw := range raws {
		c := normalize.MapContact(raw, instance)
		if c.WaID == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	if len(contacts) == 0 {
		return nil
	}
	if err := r.db.BulkUpsertContacts(contacts); err != nil {
		return fmt.Errorf("bulk upsert contacts: %w", err)
	}
	return nil
}

func (r *Router) handleConnectionUpdate(instance string, data json.RawMessage) error {
	var upd normalize.RawConnectionUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("decode connection.update: %w", err)
	}

	state := upd.State
	if state == "" {
		state = upd.Status
	}
	canonical := provider.StateDisconnected
	switch state {
	case "open", "connected":
		canonical = provider.StateConnected
	case "connecting":
		canonical = provider.StateConnecting
	}

	if err := r.machines.Get(instance).Transition(status.State(canonical)); err != nil {
		r.logger.Warn("connection state transition rejected",
			zap.String("instance", instance), zap.String("state", canonical))
	}
	if err := r.db.UpdateInstanceStatus(instance, canonical); err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	return nil
}

// chatSummary is the conversation:updated payload.
type chatSummary struct {
	ChatID             string `json:"chatId"`
	UnreadCount        int    `json:"unreadCount"`
	LastMessageAt      int64  `json:"lastMessageAt"`
	LastMessagePreview string `json:"lastMessagePreview"`
	LastMessageSender  string `json:"lastMessageSender"`
}

// decodeMessages accepts the shapes the provider uses for messages.upsert:
// a single message object, a bare array, or an object wrapping the array
// under a messages key.
func decodeMessages(data json.RawMessage) ([]normalize.RawMessage, error) {
	var wrapped struct {
		Messages []normalize.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Messages) > 0 {
		return wrapped.Messages, nil
	}
	var msgs []normalize.RawMessage
	if err := decodeOneOrMany(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// decodeOneOrMany decodes data into *[]T whether it is a single object or
// an array.
func decodeOneOrMany[T any](data json.RawMessage, out *[]T) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}
