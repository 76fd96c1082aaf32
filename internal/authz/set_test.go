package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetHasExactGrant(t *testing.T) {
	s := NewSet("production.view", "menus.view")

	ok, err := s.Contains("production.view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains("production.manage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNormalizesStoredSeparators(t *testing.T) {
	s := NewSet("finance:view")

	ok, err := s.Contains("finance.view")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetWildcardCoversDomain(t *testing.T) {
	s := NewSet("inventory.*")

	ok, err := s.Contains("inventory.view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains("inventory.adjust")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains("finance.view")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetDropsMalformedGrants(t *testing.T) {
	// Bad stored data confers nothing rather than erroring at check time.
	s := NewSet("garbage", "", "finance.view.extra", "menus.view")
	assert.Equal(t, 1, s.Len())

	ok, err := s.Contains("menus.view")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetContainsMalformedRequiredKey(t *testing.T) {
	s := NewSet("menus.view")
	_, err := s.Contains("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSetUnion(t *testing.T) {
	a := NewSet("production.view", "menus.view")
	b := NewSet("finance.view", "menus.view", "inventory.*")

	u := a.Union(b)
	assert.Equal(t, 4, u.Len())
	for _, key := range []string{"production.view", "menus.view", "finance.view", "inventory.adjust"} {
		ok, err := u.Contains(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestSetStringsCanonicalSorted(t *testing.T) {
	s := NewSet("menus:view", "finance.view", "inventory.*")
	assert.Equal(t, []string{"finance.view", "inventory.*", "menus.view"}, s.Strings())
}

func TestEmptySetDeniesEverything(t *testing.T) {
	s := NewSet()
	ok, err := s.Contains("finance.view")
	require.NoError(t, err)
	assert.False(t, ok)
}
