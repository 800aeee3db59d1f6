package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/perfreview/internal/docstore"
	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
)

var (
	issue42 = models.Key{Owner: "acme", Repo: "widgets", Type: models.TypeIssue, Number: 42}
	pr7     = models.Key{Owner: "acme", Repo: "widgets", Type: models.TypePullRequest, Number: 7}
	jan1    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2    = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

type payload struct {
	Title string `json:"title"`
}

func newStore(t *testing.T) *docstore.Store {
	t.Helper()
	return docstore.New(afero.NewMemMapFs(), "/cache")
}

func TestEntry_FreshFor(t *testing.T) {
	e := Entry[payload]{RemoteUpdatedAt: jan1}
	assert.True(t, e.FreshFor(time.Time{}))
	assert.True(t, e.FreshFor(jan1))
	assert.True(t, e.FreshFor(jan1.Add(-time.Hour)))
	assert.False(t, e.FreshFor(jan2))
}

func TestDetailCache_MissThenHit(t *testing.T) {
	c := NewDetailCache[payload](newStore(t))

	_, ok, err := c.Get(issue42, jan1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Set(issue42, payload{Title: "bug"}, jan1)
	require.NoError(t, err)

	got, ok, err := c.Get(issue42, jan1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bug", got.Data.Title)
	assert.Equal(t, jan1, got.RemoteUpdatedAt)
}

// Issue #42 cached at 2024-01-01; a caller that knows about a 2024-01-02
// update must see a miss.
func TestDetailCache_StaleWhenRemoteAdvanced(t *testing.T) {
	c := NewDetailCache[payload](newStore(t))
	_, err := c.Set(issue42, payload{Title: "old"}, jan1)
	require.NoError(t, err)

	_, ok, err := c.Get(issue42, jan2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Set(issue42, payload{Title: "new"}, jan2)
	require.NoError(t, err)
	got, ok, err := c.Get(issue42, jan2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", got.Data.Title)
}

func TestDetailCache_PersistsAcrossInstances(t *testing.T) {
	store := newStore(t)
	clock := func() time.Time { return jan2 }
	first := NewDetailCache[payload](store, WithClock(clock))
	_, err := first.Set(issue42, payload{Title: "persisted"}, jan1)
	require.NoError(t, err)

	second := NewDetailCache[payload](store)
	got, ok, err := second.Get(issue42, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Data.Title)
	assert.Equal(t, jan2, got.CachedAt)
}

func TestDetailCache_Clear(t *testing.T) {
	store := newStore(t)
	c := NewDetailCache[payload](store, WithMemorySize(1))
	other := models.Key{Owner: "acme", Repo: "gears", Type: models.TypeIssue, Number: 1}
	for _, k := range []models.Key{issue42, pr7, other} {
		_, err := c.Set(k, payload{}, jan1)
		require.NoError(t, err)
	}

	require.NoError(t, c.Clear("acme", "widgets", ""))

	_, ok, _ := c.Get(issue42, time.Time{})
	assert.False(t, ok)
	_, ok, _ = c.Get(pr7, time.Time{})
	assert.False(t, ok)
	_, ok, _ = c.Get(other, time.Time{})
	assert.True(t, ok)

	err := c.Clear("", "widgets", "")
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}

func TestAnalysisCache_RejectsUnboundActor(t *testing.T) {
	c := NewAnalysisCache[payload](newStore(t), "")

	_, _, err := c.Get(issue42, jan1)
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
	_, err = c.Set(issue42, payload{}, jan1)
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
	assert.ErrorIs(t, c.Invalidate(issue42), perrors.ErrConfiguration)
	assert.ErrorIs(t, c.Clear("", "", ""), perrors.ErrConfiguration)
	assert.ErrorIs(t, c.Bind(""), perrors.ErrConfiguration)

	require.NoError(t, c.Bind("octocat"))
	_, err = c.Set(issue42, payload{}, jan1)
	assert.NoError(t, err)
}

func TestAnalysisCache_ActorScoped(t *testing.T) {
	store := newStore(t)
	alice := NewAnalysisCache[payload](store, "alice")
	bob := NewAnalysisCache[payload](store, "bob")

	_, err := alice.Set(issue42, payload{Title: "alice view"}, jan1)
	require.NoError(t, err)

	_, ok, err := bob.Get(issue42, jan1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := alice.Get(issue42, jan1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice view", got.Data.Title)
}

func TestAnalysisCache_InvalidateErasesEveryActor(t *testing.T) {
	store := newStore(t)
	alice := NewAnalysisCache[payload](store, "alice")
	bob := NewAnalysisCache[payload](store, "bob")
	_, err := alice.Set(issue42, payload{}, jan1)
	require.NoError(t, err)
	_, err = bob.Set(issue42, payload{}, jan1)
	require.NoError(t, err)
	_, err = alice.Set(pr7, payload{}, jan1)
	require.NoError(t, err)

	require.NoError(t, alice.Invalidate(issue42))

	_, ok, _ := alice.Get(issue42, time.Time{})
	assert.False(t, ok)
	fresh := NewAnalysisCache[payload](store, "bob")
	_, ok, _ = fresh.Get(issue42, time.Time{})
	assert.False(t, ok)
	_, ok, _ = alice.Get(pr7, time.Time{})
	assert.True(t, ok)
}

func TestAnalysisCache_ClearScopedToActor(t *testing.T) {
	store := newStore(t)
	alice := NewAnalysisCache[payload](store, "alice")
	bob := NewAnalysisCache[payload](store, "bob")
	_, _ = alice.Set(issue42, payload{}, jan1)
	_, _ = bob.Set(issue42, payload{}, jan1)

	require.NoError(t, alice.Clear("acme", "", ""))

	_, ok, _ := alice.Get(issue42, time.Time{})
	assert.False(t, ok)
	_, ok, _ = bob.Get(issue42, time.Time{})
	assert.True(t, ok)
}
