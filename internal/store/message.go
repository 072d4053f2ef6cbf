package store

import "time"

// InsertMessageIfAbsent inserts a message keyed by (instance, msg_id).
// Redelivered duplicates are a silent no-op: the first-seen copy is
// authoritative and is never overwritten. Returns whether a row was written.
func (db *DB) InsertMessageIfAbsent(m *Message) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (instance, msg_id, chat_id, sender, sender_name, sender_type, body, message_type, from_me, status, timestamp, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance, msg_id) DO NOTHING`,
		m.Instance, m.MsgID, m.ChatID, m.Sender, m.SenderName, m.SenderType, m.Body, m.MessageType, m.FromMe, m.Status, m.Timestamp, m.RawPayload, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateMessageStatus sets the delivery status of an already stored message.
// Unknown message ids are a no-op; status updates may arrive before the
// message itself on redelivery and are recovered by the next upsert.
func (db *DB) UpdateMessageStatus(instance, msgID, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE instance = ? AND msg_id = ?`,
		status, instance, msgID)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp. The page is paged backward from beforeTs but returned in
// ascending order, oldest first, ready for history rendering.
func (db *DB) ListMessages(instance, chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, instance, msg_id, chat_id, sender, sender_name, sender_type, body, message_type, from_me, status, timestamp, raw_payload
		FROM messages
		WHERE instance = ? AND chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, instance, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Instance, &m.MsgID, &m.ChatID, &m.Sender, &m.SenderName, &m.SenderType, &m.Body, &m.MessageType, &m.FromMe, &m.Status, &m.Timestamp, &m.RawPayload); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the number of messages for an instance.
func (db *DB) MessageCount(instance string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE instance = ?`, instance).Scan(&count)
	return count, err
}
