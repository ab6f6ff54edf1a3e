package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenStore_RoundTrip(t *testing.T) {
	store := NewSeenStore()
	ctx := context.Background()

	in := map[string][]string{
		"walletA": {"s3", "s1", "s2"},
		"walletB": {},
	}
	require.NoError(t, store.Save(ctx, in))

	// Mutating the caller's map must not leak into the snapshot.
	in["walletA"][0] = "changed"

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, out["walletA"])
	assert.Contains(t, out, "walletB")
	assert.Equal(t, 1, store.Saves())
}

func TestWalletStore_SaveLoad(t *testing.T) {
	store := NewWalletStore("a")
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	require.NoError(t, store.Save(ctx, []string{"b", "c"}))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}
