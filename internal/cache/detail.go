package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/perfreview/internal/docstore"
	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/lru"
)

// DetailCache stores raw contribution detail keyed by identity.
type DetailCache[T any] struct {
	store  *docstore.Store
	memory *lru.Cache[models.Key, Entry[T]]
	now    func() time.Time
	logger zerolog.Logger
}

// NewDetailCache returns a detail cache persisting into store.
func NewDetailCache[T any](store *docstore.Store, opts ...Option) *DetailCache[T] {
	o := buildOptions(opts)
	return &DetailCache[T]{
		store:  store,
		memory: lru.New[models.Key, Entry[T]](o.memorySize),
		now:    o.now,
		logger: o.logger.With().Str("component", "cache.detail").Logger(),
	}
}

// Get returns the entry for key when it is fresh for known.
// A zero known accepts whatever is stored.
func (c *DetailCache[T]) Get(key models.Key, known time.Time) (Entry[T], bool, error) {
	entry, ok := c.memory.Get(key)
	if !ok {
		found, err := c.store.Read(keyPath(key), &entry)
		if err != nil {
			return Entry[T]{}, false, fmt.Errorf("detail cache get %s: %w", key, err)
		}
		if !found {
			return Entry[T]{}, false, nil
		}
		c.memory.Put(key, entry)
	}

	if !entry.FreshFor(known) {
		c.logger.Debug().
			Str("key", key.String()).
			Time("stored", entry.RemoteUpdatedAt).
			Time("known", known).
			Msg("stale detail entry")
		return Entry[T]{}, false, nil
	}
	return entry, true, nil
}

// Set stores data for key along with the remote update time it reflects.
func (c *DetailCache[T]) Set(key models.Key, data T, remoteUpdatedAt time.Time) (Entry[T], error) {
	entry := Entry[T]{
		Data:            data,
		RemoteUpdatedAt: remoteUpdatedAt.UTC(),
		CachedAt:        c.now(),
	}
	if err := c.store.Write(keyPath(key), entry); err != nil {
		return Entry[T]{}, fmt.Errorf("detail cache set %s: %w", key, err)
	}
	c.memory.Put(key, entry)
	return entry, nil
}

// Delete removes the entry for key.
func (c *DetailCache[T]) Delete(key models.Key) error {
	c.memory.Delete(key)
	if err := c.store.Delete(keyPath(key)); err != nil {
		return fmt.Errorf("detail cache delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry below owner/repo/type. Empty trailing segments
// widen the scope; all empty clears the cache.
func (c *DetailCache[T]) Clear(owner, repo string, typ models.ContributionType) error {
	prefix, err := prefixPath(owner, repo, typ)
	if err != nil {
		return err
	}
	c.memory.RemoveFunc(func(k models.Key) bool { return matchesPrefix(k, owner, repo, typ) })
	if err := c.store.RemoveTree(prefix); err != nil {
		return fmt.Errorf("detail cache clear: %w", err)
	}
	return nil
}
