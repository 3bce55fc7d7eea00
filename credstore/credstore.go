// Package credstore persists the single saved network credential.
package credstore

import (
	"errors"

	"provisioncode-go/types"
)

// ErrNoCredential is returned by Load when nothing has been saved.
var ErrNoCredential = errors.New("no saved credential")

// Store holds at most one credential. Erase on an empty store is a no-op.
type Store interface {
	Load() (types.Credential, error)
	Save(types.Credential) error
	Erase() error
}
