package normalize

import (
	"time"

	"wabridge/internal/store"
)

// Sender attribution classes carried on canonical messages.
const (
	SenderClient  = "client"
	SenderSupport = "support"
	SenderAI      = "ai"
)

// MapContact converts a raw provider contact into a canonical contact.
// The provider aliases the id between endpoints; id wins over remoteJid.
func MapContact(raw RawContact, instance string) store.Contact {
	id := raw.ID
	if id == "" {
		id = raw.RemoteJid
	}
	name := raw.Name
	if name == "" {
		name = raw.Notify
	}
	return store.Contact{
		Instance:   instance,
		WaID:       id,
		Name:       name,
		PushName:   raw.PushName,
		IsBusiness: raw.IsBusiness,
		AvatarURL:  raw.ProfilePicURL,
	}
}

// MapChat converts a raw chat listing entry into a canonical chat.
// The chat id prefers id over jid; unreadCount wins over the legacy
// unreadMessages alias.
func MapChat(raw RawChat, instance string) store.Chat {
	id := raw.ID
	if id == "" {
		id = raw.Jid
	}
	name := raw.Name
	if name == "" {
		name = raw.PushName
	}
	unread := raw.UnreadCount
	if unread == 0 {
		unread = raw.UnreadMessages
	}

	c := store.Chat{
		Instance:      instance,
		ChatID:        id,
		Name:          name,
		IsGroup:       raw.IsGroup,
		UnreadCount:   unread,
		LastMessageAt: toMillis(raw.LastMessageTimestamp),
	}
	if raw.LastMessage != nil {
		m := MapMessage(*raw.LastMessage, id, instance)
		c.LastMessagePreview = Preview(raw.LastMessage.Message)
		c.LastMessageSender = m.SenderType
		if c.LastMessageAt == 0 {
			c.LastMessageAt = m.Timestamp
		}
	}
	return c
}

// MapMessage converts a raw message payload into a canonical message.
// chatID overrides the payload's remoteJid when non-empty (findMessages
// responses are already chat-scoped).
func MapMessage(raw RawMessage, chatID, instance string) store.Message {
	if chatID == "" {
		chatID = raw.Key.RemoteJid
	}
	sender := raw.Key.Participant
	if sender == "" {
		sender = raw.Key.RemoteJid
	}

	senderType := SenderClient
	if raw.Key.FromMe {
		senderType = SenderSupport
	}

	status := raw.Status
	if status == "" {
		status = "received"
	}

	ts := toMillis(raw.MessageTimestamp)
	if ts == 0 {
		// A message without a timestamp still happened; arrival time is the
		// best ordering key available.
		ts = time.Now().UnixMilli()
	}

	return store.Message{
		Instance:    instance,
		MsgID:       raw.Key.ID,
		ChatID:      chatID,
		Sender:      sender,
		SenderName:  raw.PushName,
		SenderType:  senderType,
		Body:        extractBody(raw.Message),
		MessageType: detectKind(raw.Message),
		FromMe:      raw.Key.FromMe,
		Status:      status,
		Timestamp:   ts,
	}
}

// Preview returns the chat-listing summary for a message: the text body
// when one exists, otherwise a human-readable marker for the media kind.
func Preview(content *RawMessageContent) string {
	if body := extractBody(content); body != "" {
		return body
	}
	switch detectKind(content) {
	case "image", "video", "audio":
		return "[Mídia]"
	case "document":
		return "[Documento]"
	case "sticker":
		return "[Figurinha]"
	default:
		return ""
	}
}

// extractBody resolves the message text through the fixed fallback order:
// plain conversation, extended text, then media captions (image, video,
// audio, document). Unknown shapes yield an empty string.
func extractBody(content *RawMessageContent) string {
	if content == nil {
		return ""
	}
	if content.Conversation != "" {
		return content.Conversation
	}
	if ext := content.ExtendedTextMessage; ext != nil && ext.Text != "" {
		return ext.Text
	}
	if img := content.ImageMessage; img != nil && img.Caption != "" {
		return img.Caption
	}
	if vid := content.VideoMessage; vid != nil && vid.Caption != "" {
		return vid.Caption
	}
	if aud := content.AudioMessage; aud != nil && aud.Caption != "" {
		return aud.Caption
	}
	if doc := content.DocumentMessage; doc != nil && doc.Caption != "" {
		return doc.Caption
	}
	return ""
}

// detectKind classifies the message by its first recognized branch.
func detectKind(content *RawMessageContent) string {
	if content == nil {
		return "text"
	}
	switch {
	case content.Conversation != "" || content.ExtendedTextMessage != nil:
		return "text"
	case content.ImageMessage != nil:
		return "image"
	case content.VideoMessage != nil:
		return "video"
	case content.AudioMessage != nil:
		return "audio"
	case content.DocumentMessage != nil:
		return "document"
	case content.StickerMessage != nil:
		return "sticker"
	default:
		return "text"
	}
}

// toMillis normalizes provider timestamps: some endpoints send unix
// seconds, webhooks send milliseconds. Zero stays zero so a chat with no
// recorded activity never outranks real activity.
func toMillis(ts int64) int64 {
	if ts > 0 && ts < 1e12 {
		return ts * 1000
	}
	return ts
}
