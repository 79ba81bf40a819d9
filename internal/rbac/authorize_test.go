package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizedMatchesCaseInsensitively(t *testing.T) {
	granted := []Permission{
		{Controller: "Article", Action: "Edit"},
		{Controller: "Home", Action: "Index"},
	}

	assert.True(t, Authorized(granted, "Article", "Edit"))
	assert.True(t, Authorized(granted, "article", "edit"))
	assert.True(t, Authorized(granted, "ARTICLE", "EDIT"))
	assert.False(t, Authorized(granted, "Article", "Delete"))
	assert.False(t, Authorized(granted, "Articles", "Edit"))
}

func TestAuthorizedEmptyGrantSetDeniesEverything(t *testing.T) {
	assert.False(t, Authorized(nil, "Home", "Index"))
	assert.False(t, Authorized([]Permission{}, "Home", "Index"))
}

func TestNormalizePermissionTrimsWhitespace(t *testing.T) {
	p := NormalizePermission(Permission{Controller: "  Article ", Action: "\tEdit\n"})
	assert.Equal(t, Permission{Controller: "Article", Action: "Edit"}, p)
}
