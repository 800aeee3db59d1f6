package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/perfreview/internal/docstore"
	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/lru"
)

type analysisKey struct {
	actor string
	key   models.Key
}

// AnalysisCache stores per-actor judgments. Every operation requires a bound
// actor because the same contribution is judged differently per actor.
type AnalysisCache[T any] struct {
	store  *docstore.Store
	memory *lru.Cache[analysisKey, Entry[T]]
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.RWMutex
	actor string
}

// NewAnalysisCache returns an analysis cache bound to actor. An empty actor
// leaves the cache unbound until Bind is called.
func NewAnalysisCache[T any](store *docstore.Store, actor string, opts ...Option) *AnalysisCache[T] {
	o := buildOptions(opts)
	return &AnalysisCache[T]{
		store:  store,
		memory: lru.New[analysisKey, Entry[T]](o.memorySize),
		now:    o.now,
		logger: o.logger.With().Str("component", "cache.analysis").Logger(),
		actor:  actor,
	}
}

// Bind sets the actor all subsequent operations are scoped to.
func (c *AnalysisCache[T]) Bind(actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: analysis cache bound to empty actor", perrors.ErrConfiguration)
	}
	c.mu.Lock()
	c.actor = actor
	c.mu.Unlock()
	return nil
}

// Actor returns the bound actor, or "" when unbound.
func (c *AnalysisCache[T]) Actor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor
}

func (c *AnalysisCache[T]) boundActor(op string) (string, error) {
	actor := c.Actor()
	if actor == "" {
		return "", fmt.Errorf("%w: analysis cache %s before actor was bound", perrors.ErrConfiguration, op)
	}
	return actor, nil
}

func actorPath(actor string, key models.Key) []string {
	return append([]string{actor}, keyPath(key)...)
}

// Get returns the stored judgment for key when it is fresh for known.
func (c *AnalysisCache[T]) Get(key models.Key, known time.Time) (Entry[T], bool, error) {
	actor, err := c.boundActor("get")
	if err != nil {
		return Entry[T]{}, false, err
	}

	ak := analysisKey{actor: actor, key: key}
	entry, ok := c.memory.Get(ak)
	if !ok {
		found, err := c.store.Read(actorPath(actor, key), &entry)
		if err != nil {
			return Entry[T]{}, false, fmt.Errorf("analysis cache get %s: %w", key, err)
		}
		if !found {
			return Entry[T]{}, false, nil
		}
		c.memory.Put(ak, entry)
	}
	if !entry.FreshFor(known) {
		return Entry[T]{}, false, nil
	}
	return entry, true, nil
}

// Set stores a judgment for key, stamped with the remote update time of the
// detail it was derived from.
func (c *AnalysisCache[T]) Set(key models.Key, data T, remoteUpdatedAt time.Time) (Entry[T], error) {
	actor, err := c.boundActor("set")
	if err != nil {
		return Entry[T]{}, err
	}
	entry := Entry[T]{
		Data:            data,
		RemoteUpdatedAt: remoteUpdatedAt.UTC(),
		CachedAt:        c.now(),
	}
	if err := c.store.Write(actorPath(actor, key), entry); err != nil {
		return Entry[T]{}, fmt.Errorf("analysis cache set %s: %w", key, err)
	}
	c.memory.Put(analysisKey{actor: actor, key: key}, entry)
	return entry, nil
}

// Invalidate erases the judgment for key held by every actor. It is called
// when fresh detail replaces what those judgments were based on.
func (c *AnalysisCache[T]) Invalidate(key models.Key) error {
	if _, err := c.boundActor("invalidate"); err != nil {
		return err
	}
	c.memory.RemoveFunc(func(ak analysisKey) bool { return ak.key == key })

	actors, err := c.store.Children(nil)
	if err != nil {
		return fmt.Errorf("analysis cache invalidate %s: %w", key, err)
	}
	for _, actor := range actors {
		if err := c.store.Delete(actorPath(actor, key)); err != nil {
			return fmt.Errorf("analysis cache invalidate %s for %s: %w", key, actor, err)
		}
	}
	c.logger.Debug().Str("key", key.String()).Int("actors", len(actors)).Msg("analysis invalidated")
	return nil
}

// Clear removes the bound actor's judgments below owner/repo/type.
func (c *AnalysisCache[T]) Clear(owner, repo string, typ models.ContributionType) error {
	actor, err := c.boundActor("clear")
	if err != nil {
		return err
	}
	prefix, err := prefixPath(owner, repo, typ)
	if err != nil {
		return err
	}
	c.memory.RemoveFunc(func(ak analysisKey) bool {
		return ak.actor == actor && matchesPrefix(ak.key, owner, repo, typ)
	})
	if err := c.store.RemoveTree(append([]string{actor}, prefix...)); err != nil {
		return fmt.Errorf("analysis cache clear: %w", err)
	}
	return nil
}
