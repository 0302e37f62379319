package store

import (
	"github.com/cockroachdb/pebble"
)

func metaKey(name string) []byte {
	return []byte("meta:" + name)
}

// GetMeta reads a small system key outside any collection. Returns
// ErrNotFound when the key has never been written.
func (p *Pebble) GetMeta(name string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", errClosed
	}
	v, closer, err := p.db.Get(metaKey(name))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	out := string(v)
	_ = closer.Close()
	return out, nil
}

// SetMeta writes a small system key durably.
func (p *Pebble) SetMeta(name, value string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}
	return p.db.Set(metaKey(name), []byte(value), pebble.Sync)
}

// DeleteMeta removes a system key. Deleting a missing key is not an error.
func (p *Pebble) DeleteMeta(name string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}
	return p.db.Delete(metaKey(name), pebble.Sync)
}
