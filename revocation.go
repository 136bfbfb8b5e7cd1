package identity

import (
	"context"
	"sync"
	"time"
)

// switchSessionKind namespaces impersonation session ids in a Denylist.
const switchSessionKind TokenKind = "switch"

type denyKey struct {
	kind TokenKind
	id   string
}

// MemoryDenylist is an in-process Denylist. Entries are dropped lazily once
// their expiry has passed.
type MemoryDenylist struct {
	mu      sync.RWMutex
	entries map[denyKey]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		entries: make(map[denyKey]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for pruning.
func (d *MemoryDenylist) WithClock(now func() time.Time) *MemoryDenylist {
	if now != nil {
		d.now = now
	}
	return d
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, kind TokenKind, tokenID string) (bool, error) {
	key := denyKey{kind: kind, id: tokenID}

	d.mu.RLock()
	expiresAt, ok := d.entries[key]
	d.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if d.now().After(expiresAt) {
		d.mu.Lock()
		if current, still := d.entries[key]; still && current.Equal(expiresAt) {
			delete(d.entries, key)
		}
		d.mu.Unlock()
		return false, nil
	}

	return true, nil
}

func (d *MemoryDenylist) Revoke(_ context.Context, kind TokenKind, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := denyKey{kind: kind, id: tokenID}
	if current, ok := d.entries[key]; ok && current.After(expiresAt) {
		return nil
	}
	d.entries[key] = expiresAt
	return nil
}

func (d *MemoryDenylist) RevokeIfAbsent(_ context.Context, kind TokenKind, tokenID string, expiresAt time.Time) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := denyKey{kind: kind, id: tokenID}
	if current, ok := d.entries[key]; ok && !d.now().After(current) {
		return false, nil
	}
	d.entries[key] = expiresAt
	return true, nil
}

// Prune drops every entry that expired before now and returns how many
// were removed.
func (d *MemoryDenylist) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, expiresAt := range d.entries {
		if now.After(expiresAt) {
			delete(d.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries.
func (d *MemoryDenylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
