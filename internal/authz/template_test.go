// ABOUTME: Tests for path-template matching
// ABOUTME: Placeholders match one segment and never spill across slashes

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		path     string
		want     bool
	}{
		{"exact literal", "/api/v1/user/list", "/api/v1/user/list", true},
		{"literal mismatch", "/api/v1/user/list", "/api/v1/role/list", false},
		{"single placeholder", "/api/v1/agents/{id}", "/api/v1/agents/42", true},
		{"placeholder wrong prefix", "/api/v1/agents/{id}", "/api/v1/users/42", false},
		{"extra trailing segment", "/api/v1/agents/{id}", "/api/v1/agents/42/extra", false},
		{"missing segment", "/api/v1/agents/{id}", "/api/v1/agents", false},
		{"placeholder mid-path", "/api/v1/agents/{id}/chat", "/api/v1/agents/7/chat", true},
		{"placeholder mid-path mismatch", "/api/v1/agents/{id}/chat", "/api/v1/agents/7/completions", false},
		{"two placeholders", "/api/v1/{entity}/{id}", "/api/v1/agents/9", true},
		{"no placeholder no match", "/api/v1/user/list", "/api/v1/user/list/more", false},
		{"trailing slash tolerated", "/api/v1/agents/{id}", "/api/v1/agents/42/", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTemplate(tt.template, tt.path))
		})
	}
}
