package store

import (
	"database/sql"
	"time"
)

// UpsertInstance inserts or updates an instance record. Status is only
// overwritten when the incoming record carries a non-empty status.
func (db *DB) UpsertInstance(i *Instance) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO instances (name, base_url, api_key, status, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(NULLIF(?, ''), 'disconnected'), ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			base_url = CASE WHEN excluded.base_url != '' THEN excluded.base_url ELSE instances.base_url END,
			api_key = CASE WHEN excluded.api_key != '' THEN excluded.api_key ELSE instances.api_key END,
			status = CASE WHEN ? != '' THEN excluded.status ELSE instances.status END,
			updated_at = excluded.updated_at`,
		i.Name, i.BaseURL, i.APIKey, i.Status, now, now, i.Status)
	return err
}

// GetInstance returns an instance by name, or nil if absent.
func (db *DB) GetInstance(name string) (*Instance, error) {
	var i Instance
	err := db.QueryRow(`
		SELECT name, base_url, api_key, status, created_at, updated_at
		FROM instances WHERE name = ?`, name).
		Scan(&i.Name, &i.BaseURL, &i.APIKey, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// FindInstanceByAPIKey resolves the instance owning a provider API key.
// Used by the webhook router when the envelope omits the instance name and
// only the provider-identifying header is available.
func (db *DB) FindInstanceByAPIKey(apiKey string) (*Instance, error) {
	var i Instance
	err := db.QueryRow(`
		SELECT name, base_url, api_key, status, created_at, updated_at
		FROM instances WHERE api_key = ?`, apiKey).
		Scan(&i.Name, &i.BaseURL, &i.APIKey, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// UpdateInstanceStatus sets the connection status for an instance.
func (db *DB) UpdateInstanceStatus(name, status string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE instances SET status = ?, updated_at = ? WHERE name = ?`,
		status, now, name)
	return err
}
