//go:build integration

package localstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"intellib/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)

	suite.Run(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		require.NoError(t, rc.FlushAll(context.Background()))
		return NewRedis(rc.Client, "default")
	}})
}

func TestRedisProfilesAreIsolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	alice := NewRedis(rc.Client, "alice")
	bob := NewRedis(rc.Client, "bob")
	for i := 0; i < 250; i++ {
		require.NoError(t, alice.Set(ctx, "cart.item."+string(rune('a'+i%26))+string(rune('a'+i/26)), "x"))
	}
	require.NoError(t, bob.Set(ctx, KeySessionToken, "tok"))

	require.NoError(t, alice.Clear(ctx))

	keys, err := alice.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
	v, err := bob.Get(ctx, KeySessionToken)
	require.NoError(t, err)
	require.Equal(t, "tok", v)
}
