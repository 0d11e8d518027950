package storage

import "errors"

// Namespace and keys holding the bemfa credentials.
const (
	Namespace = "storage"
	KeyTopic  = "bemfa_topic"
	KeyToken  = "bemfa_token"
	KeySSID   = "bind_ssid"
	KeyPass   = "bind_pass"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("key not found")

// DeviceStateStore is the persistent key/value storage the relay reads its
// credentials from. Writers must not run while a session is reading.
type DeviceStateStore interface {
	ReadString(namespace, key string) (string, error)
	WriteString(namespace, key, value string) error
}

// Ensure implementations satisfy DeviceStateStore
var (
	_ DeviceStateStore = (*SQLiteStore)(nil)
	_ DeviceStateStore = (*MemoryStore)(nil)
)
