package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityExpired(t *testing.T) {
	now := time.Now()

	assert.True(t, (*Identity)(nil).Expired(now))
	assert.False(t, (&Identity{ID: "alice"}).Expired(now))
	assert.False(t, (&Identity{ID: "alice", ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Identity{ID: "alice", ExpiresAt: now}).Expired(now))
}

func TestSameIdentity(t *testing.T) {
	alice := &Identity{ID: "alice", Email: "alice@library.test", Token: "t1"}

	assert.True(t, SameIdentity(nil, nil))
	assert.False(t, SameIdentity(alice, nil))
	assert.False(t, SameIdentity(nil, alice))
	assert.True(t, SameIdentity(alice, alice.Clone()))

	refreshed := alice.Clone()
	refreshed.Token = "t2"
	assert.False(t, SameIdentity(alice, refreshed))
}
