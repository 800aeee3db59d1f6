// Package cache implements the detail and analysis caches. Both persist one
// JSON document per contribution in a docstore tree partitioned by identity
// and keep recently used entries in an in-process LRU.
package cache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
)

// DefaultMemorySize is the LRU capacity used when none is configured.
const DefaultMemorySize = 256

// Entry wraps a cached payload with its validating timestamps.
type Entry[T any] struct {
	Data            T         `json:"data"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	CachedAt        time.Time `json:"cached_at"`
}

// FreshFor reports whether the entry may serve a caller that knows the
// remote item was updated at known. A zero known always matches.
func (e Entry[T]) FreshFor(known time.Time) bool {
	return known.IsZero() || !known.After(e.RemoteUpdatedAt)
}

type options struct {
	memorySize int
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a cache.
type Option func(*options)

// WithMemorySize sets the LRU capacity of the in-process tier.
func WithMemorySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.memorySize = n
		}
	}
}

// WithClock overrides the clock used for CachedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		memorySize: DefaultMemorySize,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func keyPath(k models.Key) []string {
	return []string{k.Owner, k.Repo, string(k.Type), strconv.Itoa(k.Number)}
}

// prefixPath builds owner/repo/type from leading non-empty segments.
// A gap such as owner="" with repo set is rejected.
func prefixPath(owner, repo string, typ models.ContributionType) ([]string, error) {
	segs := []string{owner, repo, string(typ)}
	var out []string
	for i, s := range segs {
		if s == "" {
			for _, rest := range segs[i+1:] {
				if rest != "" {
					return nil, fmt.Errorf("%w: cache prefix %q/%q/%q has a gap", perrors.ErrConfiguration, owner, repo, typ)
				}
			}
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func matchesPrefix(k models.Key, owner, repo string, typ models.ContributionType) bool {
	if owner != "" && k.Owner != owner {
		return false
	}
	if repo != "" && k.Repo != repo {
		return false
	}
	if typ != "" && k.Type != typ {
		return false
	}
	return true
}
