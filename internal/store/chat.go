package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record. Unread count and last-message
// fields are last-write-wins, per the sync contract: the provider listing is
// authoritative for them whenever it is re-fetched.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (instance, chat_id, name, is_group, unread_count, last_message_at, last_message_preview, last_message_sender, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance, chat_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			last_message_sender = excluded.last_message_sender,
			updated_at = excluded.updated_at`,
		c.Instance, c.ChatID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, c.LastMessageSender, now)
	return err
}

// TouchChatLastMessage creates the chat if needed and advances its
// last-message summary, guarded so an older racing write cannot move the
// summary backwards.
func (db *DB) TouchChatLastMessage(instance, chatID, preview, sender string, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (instance, chat_id, last_message_at, last_message_preview, last_message_sender, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance, chat_id) DO UPDATE SET
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_sender = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_sender ELSE chats.last_message_sender END,
			updated_at = excluded.updated_at`,
		instance, chatID, ts, preview, sender, now)
	return err
}

// ListChats returns chats sorted by last message timestamp descending.
// Display names fall back through contact push_name and name to the chat id.
// beforeTs is the keyset cursor; zero or negative starts from the newest.
func (db *DB) ListChats(instance string, beforeTs int64, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT c.instance, c.chat_id,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.chat_id) AS display_name,
			c.is_group, c.unread_count, c.last_message_at, c.last_message_preview, c.last_message_sender
		FROM chats c
		LEFT JOIN contacts ct ON c.instance = ct.instance AND c.chat_id = ct.wa_id
		WHERE c.instance = ? AND c.last_message_at < ?
		ORDER BY c.last_message_at DESC
		LIMIT ?`, instance, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.Instance, &c.ChatID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageSender); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat, or nil if absent.
func (db *DB) GetChat(instance, chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT c.instance, c.chat_id,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.chat_id) AS display_name,
			c.is_group, c.unread_count, c.last_message_at, c.last_message_preview, c.last_message_sender
		FROM chats c
		LEFT JOIN contacts ct ON c.instance = ct.instance AND c.chat_id = ct.wa_id
		WHERE c.instance = ? AND c.chat_id = ?`, instance, chatID).
		Scan(&c.Instance, &c.ChatID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageSender)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the number of chats for an instance.
func (db *DB) ChatCount(instance string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats WHERE instance = ?`, instance).Scan(&count)
	return count, err
}
