// ABOUTME: Tests for identity propagation through request contexts
// ABOUTME: Covers round-trip, absent identity, and nil identity

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := &Identity{ID: 5, Username: "carol", IsSuperuser: false}

	ctx := WithIdentity(context.Background(), id)
	got, ok := IdentityFromContext(ctx)

	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestIdentityFromContext_Absent(t *testing.T) {
	got, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestIdentityFromContext_Nil(t *testing.T) {
	ctx := WithIdentity(context.Background(), nil)
	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)
}
