package session

import (
	"errors"
	"fmt"

	"bemfarelay/internal/storage"
	"bemfarelay/pkg/protocol"
)

// ErrInvalidCredentials indicates a missing or over-long topic or token.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials identify the device to the broker. They are fixed for the
// lifetime of a session.
type Credentials struct {
	Topic string
	Token string
}

// Validate checks presence and the firmware buffer limits.
func (c Credentials) Validate() error {
	switch {
	case c.Topic == "":
		return fmt.Errorf("%w: topic is empty", ErrInvalidCredentials)
	case c.Token == "":
		return fmt.Errorf("%w: token is empty", ErrInvalidCredentials)
	case len(c.Topic) > protocol.MaxTopicLen:
		return fmt.Errorf("%w: topic longer than %d chars", ErrInvalidCredentials, protocol.MaxTopicLen)
	case len(c.Token) > protocol.MaxTokenLen:
		return fmt.Errorf("%w: token longer than %d chars", ErrInvalidCredentials, protocol.MaxTokenLen)
	}
	return nil
}

// MaskedToken returns the token with all but the last four characters hidden.
func (c Credentials) MaskedToken() string {
	if len(c.Token) <= 4 {
		return "****"
	}
	return "****" + c.Token[len(c.Token)-4:]
}

// LoadCredentials reads topic and token from the device store.
func LoadCredentials(store storage.DeviceStateStore) (Credentials, error) {
	topic, err := store.ReadString(storage.Namespace, storage.KeyTopic)
	if err != nil {
		return Credentials{}, fmt.Errorf("read topic: %w", err)
	}
	token, err := store.ReadString(storage.Namespace, storage.KeyToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("read token: %w", err)
	}
	creds := Credentials{Topic: topic, Token: token}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
