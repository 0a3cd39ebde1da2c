package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseFilename is the SQLite file created under the client home.
const DatabaseFilename = "pqchat.db"

// Schema for the local key and message store.
const schema = `
CREATE TABLE IF NOT EXISTS identity_keys (
    user_id              TEXT PRIMARY KEY,
    encapsulation_public BLOB NOT NULL,
    signing_public       BLOB NOT NULL,
    private_sealed       BLOB NOT NULL,
    created_at           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    seq                      INTEGER PRIMARY KEY AUTOINCREMENT,
    local_id                 TEXT NOT NULL UNIQUE,
    conversation_id          TEXT NOT NULL,
    sender_id                TEXT NOT NULL,
    receiver_id              TEXT NOT NULL,
    timestamp_ms             INTEGER NOT NULL,
    remote_id                TEXT,
    plaintext                TEXT NOT NULL DEFAULT '',
    placeholder              INTEGER NOT NULL DEFAULT 0,
    verified                 INTEGER,
    origin                   TEXT NOT NULL,
    plaintext_fp             TEXT,
    cipher_fp                TEXT,
    encapsulation_ciphertext BLOB,
    encrypted_payload        BLOB,
    nonce                    BLOB,
    signature                BLOB
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp_ms, seq);
CREATE INDEX IF NOT EXISTS idx_messages_remote ON messages(conversation_id, remote_id);
CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(conversation_id, sender_id, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_messages_cipher ON messages(conversation_id, cipher_fp);
`

// DB is the SQLite database shared by the key and message stores.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// toMillis and fromMillis fix the stored timestamp precision.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
