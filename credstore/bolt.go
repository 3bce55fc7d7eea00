//go:build !rp2040 && !rp2350

package credstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"provisioncode-go/types"
)

var (
	bucketNetwork = []byte("network")
	keyCredential = []byte("credential")
)

// Bolt persists the credential in a BoltDB file. Used by the linux daemon
// and host runs; MCU builds use the flash-backed store instead.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNetwork)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Load() (types.Credential, error) {
	var cred types.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetwork)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNetwork)
		}
		data := b.Get(keyCredential)
		if data == nil {
			return ErrNoCredential
		}
		return json.Unmarshal(data, &cred)
	})
	if err != nil {
		return types.Credential{}, err
	}
	return cred, nil
}

func (s *Bolt) Save(cred types.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetwork)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNetwork)
		}
		data, err := json.Marshal(cred)
		if err != nil {
			return err
		}
		return b.Put(keyCredential, data)
	})
}

func (s *Bolt) Erase() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetwork)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNetwork)
		}
		return b.Delete(keyCredential)
	})
}

func (s *Bolt) Close() error { return s.db.Close() }
