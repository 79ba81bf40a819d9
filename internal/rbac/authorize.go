package rbac

import "strings"

// Authorized reports whether the granted permission set covers the requested
// controller/action pair. Matching is case-insensitive. This is the single
// predicate behind both the enforcement middleware and the link visibility
// helper, so the two can never drift apart.
func Authorized(granted []Permission, controller, action string) bool {
	for _, p := range granted {
		if strings.EqualFold(p.Controller, controller) && strings.EqualFold(p.Action, action) {
			return true
		}
	}
	return false
}

// NormalizePermission trims surrounding whitespace from both names. Values
// are normalized at write time so stored rows never depend on how a form
// happened to submit them; comparison stays case-insensitive either way.
func NormalizePermission(p Permission) Permission {
	return Permission{
		Controller: strings.TrimSpace(p.Controller),
		Action:     strings.TrimSpace(p.Action),
	}
}
