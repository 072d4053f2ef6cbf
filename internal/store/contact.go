package store

import (
	"fmt"
	"time"
)

// UpsertContact inserts or updates a contact. Empty incoming names do not
// clobber previously known ones.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (instance, wa_id, name, push_name, is_business, avatar_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance, wa_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
			is_business = excluded.is_business,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
			updated_at = excluded.updated_at`,
		c.Instance, c.WaID, c.Name, c.PushName, c.IsBusiness, c.AvatarURL, now)
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (instance, wa_id, name, push_name, is_business, avatar_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance, wa_id) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
				push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
				is_business = excluded.is_business,
				avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
				updated_at = excluded.updated_at`,
			c.Instance, c.WaID, c.Name, c.PushName, c.IsBusiness, c.AvatarURL, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.WaID, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns contacts ordered by wa_id using keyset pagination.
// afterID is the wa_id cursor; empty starts from the beginning.
func (db *DB) ListContacts(instance, afterID string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT instance, wa_id, name, push_name, is_business, avatar_url
		FROM contacts
		WHERE instance = ? AND wa_id > ?
		ORDER BY wa_id ASC
		LIMIT ?`, instance, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Instance, &c.WaID, &c.Name, &c.PushName, &c.IsBusiness, &c.AvatarURL); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ContactCount returns the number of contacts for an instance.
func (db *DB) ContactCount(instance string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE instance = ?`, instance).Scan(&count)
	return count, err
}
