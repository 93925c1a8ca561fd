// ABOUTME: Tests for the three-state agent scope
// ABOUTME: Verifies the empty grant set collapses to NoAccess, not all-access

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeUnrestricted(t *testing.T) {
	s := Unrestricted()
	assert.True(t, s.IsUnrestricted())
	assert.True(t, s.Allows(1))
	assert.True(t, s.Allows(99999))
	assert.Nil(t, s.FilterIDs())
}

func TestScopeRestricted(t *testing.T) {
	s := Restricted([]int64{3, 7})
	assert.False(t, s.IsUnrestricted())
	assert.True(t, s.Allows(3))
	assert.True(t, s.Allows(7))
	assert.False(t, s.Allows(4))

	ids := s.FilterIDs()
	assert.ElementsMatch(t, []int64{3, 7}, ids)
}

func TestScopeNoAccess(t *testing.T) {
	s := NoAccess()
	assert.False(t, s.IsUnrestricted())
	assert.False(t, s.Allows(1))

	ids := s.FilterIDs()
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestRestrictedEmptyCollapsesToNoAccess(t *testing.T) {
	s := Restricted(nil)
	assert.False(t, s.Allows(1))
	ids := s.FilterIDs()
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}
