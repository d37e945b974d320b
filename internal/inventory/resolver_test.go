package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveByID(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5")})
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), []ItemRef{{Type: ItemTypeMaterial, ID: 1}})
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	require.Len(t, res.Items, 1)
	require.Equal(t, "MAT0001", res.Items[0].Code)
}

func TestResolveFallsBackToCode(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 2, Type: ItemTypeFragrance, Code: "FRG0001", CurrentStock: dec("3")})
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), []ItemRef{
		{Type: ItemTypeFragrance, ID: 99, Code: "FRG0001"},
		{Type: ItemTypeFragrance, Code: "FRG0001"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	require.Len(t, res.Items, 2)
	require.Equal(t, int64(2), res.Items[0].ID)
	require.Equal(t, int64(2), res.Items[1].ID)
}

func TestResolveCollectsAllFailures(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5")})
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), []ItemRef{
		{Type: ItemTypeMaterial, ID: 1},
		{Type: ItemTypeMaterial, ID: 42},
		{Type: ItemTypeFragrance, Code: "FRG9999"},
		{Type: ItemType("gadget"), ID: 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Len(t, res.Failed, 3)
}

func TestResolveRejectsEmptyReference(t *testing.T) {
	r := NewResolver(newMemoryRepo())
	res, err := r.Resolve(context.Background(), []ItemRef{{Type: ItemTypeMaterial}})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Len(t, res.Failed, 1)
}
