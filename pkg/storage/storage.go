// Package storage defines the key-value persistence contract the engine
// saves and loads its state through. The engine mandates no format beyond
// round-trip fidelity: load(save(state)) must equal state.
package storage

import "context"

// PersistenceStore is the load/save contract. Implementations must treat
// the payload as opaque bytes.
type PersistenceStore interface {
	// Load returns the payload stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores the payload under key, replacing any previous value.
	Save(ctx context.Context, key string, payload []byte) error
}
