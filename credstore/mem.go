package credstore

import "provisioncode-go/types"

// Mem is an in-memory store for tests and volatile host runs.
type Mem struct {
	cred  types.Credential
	saved bool
}

func NewMem() *Mem { return &Mem{} }

// Preload seeds the store, bypassing Save, for test setup.
func (m *Mem) Preload(cred types.Credential) {
	m.cred = cred
	m.saved = true
}

func (m *Mem) Load() (types.Credential, error) {
	if !m.saved {
		return types.Credential{}, ErrNoCredential
	}
	return m.cred, nil
}

func (m *Mem) Save(cred types.Credential) error {
	m.cred = cred
	m.saved = true
	return nil
}

func (m *Mem) Erase() error {
	m.cred = types.Credential{}
	m.saved = false
	return nil
}
