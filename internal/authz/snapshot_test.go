package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnapshotCoversEveryRole(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)
	source.grant(2, analystRole)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHEF", "FINANCIAL_ANALYST"}, snap.Roles())

	set := snap.PermissionsFor([]string{"CHEF"})
	ok, err := set.Contains("production.view")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildSnapshotStoreFailureWrapsErrResolution(t *testing.T) {
	source := newStubSource()
	source.allErr = errors.New("connection refused")

	_, err := BuildSnapshot(context.Background(), source)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole, analystRole)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	data, err := snap.MarshalJSON()
	require.NoError(t, err)

	var restored Snapshot
	require.NoError(t, restored.UnmarshalJSON(data))

	assert.Equal(t, snap.Roles(), restored.Roles())
	for _, key := range Catalog() {
		want := snap.PermissionsFor([]string{"CHEF", "FINANCIAL_ANALYST"})
		got := restored.PermissionsFor([]string{"CHEF", "FINANCIAL_ANALYST"})
		wantOK, err := want.Contains(key)
		require.NoError(t, err)
		gotOK, err := got.Contains(key)
		require.NoError(t, err)
		assert.Equal(t, wantOK, gotOK, key)
	}
}

func TestVerifyCleanWhenStoreUnchanged(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	report, err := snap.Verify(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, "snapshot in sync", report.String())
}

func TestVerifyDetectsChangedGrants(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	source.grant(1, RoleGrant{Name: "CHEF", Permissions: []string{"production.view"}})

	report, err := snap.Verify(context.Background(), source)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	require.Len(t, report.Changed, 1)
	assert.Equal(t, "CHEF", report.Changed[0].Role)
	assert.Contains(t, report.String(), "changed")
}

func TestVerifyDetectsMissingAndOrphanRoles(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	source.grant(1, analystRole)

	report, err := snap.Verify(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []string{"FINANCIAL_ANALYST"}, report.Missing)
	assert.Equal(t, []string{"CHEF"}, report.Orphans)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	source := newStubSource()
	source.grant(1, chefRole)
	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	store := NewSnapshotStore(client, "")
	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Roles(), loaded.Roles())
}

func TestSnapshotStoreMissingArtifact(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewSnapshotStore(client, "authz:snapshot")
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSnapshotHolderReplace(t *testing.T) {
	holder := NewSnapshotHolder(nil)
	assert.Nil(t, holder.Current())

	source := newStubSource()
	source.grant(1, chefRole)
	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	holder.Replace(snap)
	assert.Same(t, snap, holder.Current())
}
