package storage

import "github.com/rancher/vmstatus/internal/database"

// StatusTableName is the table backing the voicemail status URIs.
const StatusTableName = "voicemail_status"

const CreateStatusTableSQL = `
CREATE TABLE IF NOT EXISTS voicemail_status (
    _id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_package TEXT NOT NULL UNIQUE,
    settings_uri TEXT,
    voicemail_access_uri TEXT,
    configuration_state INTEGER,
    data_channel_state INTEGER,
    notification_channel_state INTEGER
);
`

const CreateStatusTablePostgresSQL = `
CREATE TABLE IF NOT EXISTS voicemail_status (
    _id BIGSERIAL PRIMARY KEY,
    source_package TEXT NOT NULL UNIQUE,
    settings_uri TEXT,
    voicemail_access_uri TEXT,
    configuration_state INTEGER,
    data_channel_state INTEGER,
    notification_channel_state INTEGER
);
`

// StatusTableSchema returns the statement creating the status table for driver.
func StatusTableSchema(driver string) string {
	if driver == database.DriverPgx {
		return CreateStatusTablePostgresSQL
	}

	return CreateStatusTableSQL
}
