package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustKeyAcceptsCatalogKey(t *testing.T) {
	registry := DefaultRegistry()
	k := registry.MustKey("production.view")
	assert.Equal(t, "production", k.Domain)
	assert.Equal(t, "view", k.Action)
}

func TestMustKeyRejectsWildcard(t *testing.T) {
	registry := DefaultRegistry()

	// A wildcard names a grant shape, not a capability; requiring one in a
	// guard or route rule is a wiring mistake.
	assert.Panics(t, func() {
		registry.MustKey("inventory.*")
	})
}

func TestMustKeyRejectsUnknownAndMalformed(t *testing.T) {
	registry := DefaultRegistry()

	assert.Panics(t, func() {
		registry.MustKey("warehouse.teleport")
	})
	assert.Panics(t, func() {
		registry.MustKey("not a key")
	})
}

func TestKnownAcceptsWildcardGrantForKnownDomain(t *testing.T) {
	registry := DefaultRegistry()

	k, err := ParseKey("inventory.*")
	require.NoError(t, err)
	assert.True(t, registry.Known(k))

	k, err = ParseKey("warehouse.*")
	require.NoError(t, err)
	assert.False(t, registry.Known(k))
}
