package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(opts ...Option) *Registry {
	b := NewBuilder()
	b.Controller("Role", "Role management").
		Action("Index", "Role list").
		Action("Create", "Create role").
		Action("Create", "Create role (POST)").
		Action("Edit", "Edit role")
	b.Controller("Access", "User access").
		Action("Index", "Access list").
		Action("Edit", "Edit access")
	b.Controller("Home", "").
		Action("Index", "")
	return b.Build(opts...)
}

func TestBuildPreservesRegistrationOrder(t *testing.T) {
	reg := buildSample()
	endpoints := reg.Endpoints()
	require.Len(t, endpoints, 3)
	assert.Equal(t, "Role", endpoints[0].Controller)
	assert.Equal(t, "Access", endpoints[1].Controller)
	assert.Equal(t, "Home", endpoints[2].Controller)
	assert.Equal(t, "Role management", endpoints[0].Description)
}

func TestBuildDeduplicatesActionsKeepFirst(t *testing.T) {
	reg := buildSample()
	endpoints := reg.Endpoints()
	role := endpoints[0]
	require.Len(t, role.Actions, 3)
	assert.Equal(t, "Index", role.Actions[0].Name)
	assert.Equal(t, "Create", role.Actions[1].Name)
	// First registration wins when the same action is declared twice.
	assert.Equal(t, "Create role", role.Actions[1].Description)
	assert.Equal(t, "Edit", role.Actions[2].Name)
}

func TestBuildExcludesControllersBySubstring(t *testing.T) {
	reg := buildSample(WithExcludeSubstring("Acc"))
	endpoints := reg.Endpoints()
	require.Len(t, endpoints, 2)
	for _, e := range endpoints {
		assert.NotEqual(t, "Access", e.Controller)
	}
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	reg := buildSample()
	assert.True(t, reg.Contains("role", "INDEX"))
	assert.True(t, reg.Contains("ROLE", "edit"))
	assert.False(t, reg.Contains("Role", "Delete"))
	assert.False(t, reg.Contains("Unknown", "Index"))
}

func TestEndpointsReturnsDefensiveCopy(t *testing.T) {
	reg := buildSample()
	first := reg.Endpoints()
	first[0].Controller = "Mutated"
	first[0].Actions[0].Name = "Mutated"

	again := reg.Endpoints()
	assert.Equal(t, "Role", again[0].Controller)
	assert.Equal(t, "Index", again[0].Actions[0].Name)
}
