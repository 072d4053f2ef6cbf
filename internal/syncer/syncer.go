// Package syncer implements the pull path: fetch from the provider,
// normalize, merge into the canonical store, and answer callers from the
// store so locally recorded outbound messages and provider state meet in
// one place.
package syncer

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"wabridge/internal/normalize"
	"wabridge/internal/provider"
	"wabridge/internal/store"
)

// Proxy orchestrates provider fetch → normalize → persist → read-back.
type Proxy struct {
	db      *store.DB
	clients *provider.Cache
	logger  *zap.Logger
}

// NewProxy creates a sync proxy.
func NewProxy(db *store.DB, clients *provider.Cache, logger *zap.Logger) *Proxy {
	return &Proxy{db: db, clients: clients, logger: logger}
}

// FetchContacts resyncs contacts from the provider and returns a page from
// the store. cursor is the wa_id keyset cursor; the returned cursor is
// empty when the page is the last one.
func (p *Proxy) FetchContacts(ctx context.Context, inst *store.Instance, cursor string, limit int) ([]store.Contact, string, error) {
	client := p.clients.Get(inst.BaseURL, inst.APIKey)

	syncErr := p.resyncContacts(ctx, client, inst.Name)
	contacts, err := p.db.ListContacts(inst.Name, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list contacts: %w", err)
	}
	if syncErr != nil && len(contacts) == 0 {
		return nil, "", syncErr
	}

	next := ""
	if limit > 0 && len(contacts) == limit {
		next = contacts[len(contacts)-1].WaID
	}
	return contacts, next, nil
}

// FetchChats resyncs the chat listing and returns a page from the store,
// most recent activity first. cursor is a last_message_at timestamp.
func (p *Proxy) FetchChats(ctx context.Context, inst *store.Instance, cursor string, limit int) ([]store.Chat, string, error) {
	client := p.clients.Get(inst.BaseURL, inst.APIKey)

	syncErr := p.resyncChats(ctx, client, inst.Name)
	chats, err := p.db.ListChats(inst.Name, parseTsCursor(cursor), limit)
	if err != nil {
		return nil, "", fmt.Errorf("list chats: %w", err)
	}
	if syncErr != nil && len(chats) == 0 {
		return nil, "", syncErr
	}

	next := ""
	if limit > 0 && len(chats) == limit {
		next = strconv.FormatInt(chats[len(chats)-1].LastMessageAt, 10)
	}
	return chats, next, nil
}

// FetchMessages resyncs one chat's messages and returns a page from the
// store in ascending order. cursor is a timestamp; the page holds messages
// strictly older than it, so callers walk history backwards.
func (p *Proxy) FetchMessages(ctx context.Context, inst *store.Instance, chatID, cursor string, limit int) ([]store.Message, string, error) {
	client := p.clients.Get(inst.BaseURL, inst.APIKey)

	syncErr := p.resyncMessages(ctx, client, inst.Name, chatID)
	msgs, err := p.db.ListMessages(inst.Name, chatID, parseTsCursor(cursor), limit)
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}
	if syncErr != nil && len(msgs) == 0 {
		return nil, "", syncErr
	}

	next := ""
	if limit > 0 && len(msgs) == limit {
		// Ascending page: the oldest entry is first.
		next = strconv.FormatInt(msgs[0].Timestamp, 10)
	}
	return msgs, next, nil
}

func (p *Proxy) resyncContacts(ctx context.Context, client *provider.Client, instance string) error {
	raws, err := client.FindContacts(ctx, instance)
	if err != nil {
		p.logger.Warn("contact resync failed, answering from store",
			zap.Error(err), zap.String("instance", instance))
		return err
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
	if err := p.db.BulkUpsertContacts(contacts); err != nil {
		return fmt.Errorf("merge contacts: %w", err)
	}
	return nil
}

func (p *Proxy) resyncChats(ctx context.Context, client *provider.Client, instance string) error {
	raws, err := client.FindChats(ctx, instance)
	if err != nil {
		p.logger.Warn("chat resync failed, answering from store",
			zap.Error(err), zap.String("instance", instance))
		return err
	}
	for _, raw := range raws {
		chat := normalize.MapChat(raw, instance)
		if chat.ChatID == "" {
			continue
		}
		if err := p.db.UpsertChat(&chat); err != nil {
			return fmt.Errorf("merge chat %q: %w", chat.ChatID, err)
		}
	}
	return nil
}

func (p *Proxy) resyncMessages(ctx context.Context, client *provider.Client, instance, chatID string) error {
	raws, err := client.FindMessages(ctx, instance, chatID)
	if err != nil {
		p.logger.Warn("message resync failed, answering from store",
			zap.Error(err), zap.String("instance", instance), zap.String("chat", chatID))
		return err
	}
	for _, raw := range raws {
		msg := normalize.MapMessage(raw, chatID, instance)
		if msg.MsgID == "" {
			continue
		}
		// Locally recorded outbound copies win: insert-or-ignore keeps them.
		if _, err := p.db.InsertMessageIfAbsent(&msg); err != nil {
			return fmt.Errorf("merge message %q: %w", msg.MsgID, err)
		}
	}
	return nil
}

// parseTsCursor decodes a timestamp cursor; anything unparsable means
// "from the newest".
func parseTsCursor(cursor string) int64 {
	if cursor == "" {
		return 0
	}
	ts, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
