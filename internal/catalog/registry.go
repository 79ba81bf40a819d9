// Package catalog holds the registry of grantable endpoints. Every handler
// registers its controller/action pairs during startup; the resulting
// Registry is immutable and feeds the role editor's checkbox matrix.
package catalog

import "strings"

// ActionDescriptor identifies one action within a controller.
type ActionDescriptor struct {
	Name        string
	Description string
}

// EndpointDescriptor groups the actions exposed by one controller.
type EndpointDescriptor struct {
	Controller  string
	Description string
	Actions     []ActionDescriptor
}

// Builder accumulates endpoint registrations before the Registry is sealed.
type Builder struct {
	entries []EndpointDescriptor
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Controller registers a controller with an optional human-readable
// description and returns it for action registration. Registration order is
// preserved in the built Registry.
func (b *Builder) Controller(name, description string) *EndpointDescriptor {
	b.entries = append(b.entries, EndpointDescriptor{Controller: name, Description: description})
	return &b.entries[len(b.entries)-1]
}

// Action registers an action on the controller.
func (e *EndpointDescriptor) Action(name, description string) *EndpointDescriptor {
	e.Actions = append(e.Actions, ActionDescriptor{Name: name, Description: description})
	return e
}

// Option customizes Registry construction.
type Option func(*buildOptions)

type buildOptions struct {
	excludeSubstring string
}

// WithExcludeSubstring drops any controller whose name contains substr.
func WithExcludeSubstring(substr string) Option {
	return func(o *buildOptions) {
		o.excludeSubstring = substr
	}
}

// Build seals the registrations into an immutable Registry. Actions sharing
// a name within one controller collapse to the first registration, since
// they expose a single logical endpoint.
func (b *Builder) Build(opts ...Option) *Registry {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}

	entries := make([]EndpointDescriptor, 0, len(b.entries))
	for _, entry := range b.entries {
		if options.excludeSubstring != "" && strings.Contains(entry.Controller, options.excludeSubstring) {
			continue
		}
		seen := make(map[string]struct{}, len(entry.Actions))
		actions := make([]ActionDescriptor, 0, len(entry.Actions))
		for _, action := range entry.Actions {
			key := strings.ToLower(action.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			actions = append(actions, action)
		}
		entries = append(entries, EndpointDescriptor{
			Controller:  entry.Controller,
			Description: entry.Description,
			Actions:     actions,
		})
	}
	return &Registry{entries: entries}
}

// Registry is the sealed universe of grantable endpoints.
type Registry struct {
	entries []EndpointDescriptor
}

// Endpoints returns a copy of the registered endpoints in registration order.
func (r *Registry) Endpoints() []EndpointDescriptor {
	out := make([]EndpointDescriptor, len(r.entries))
	for i, entry := range r.entries {
		actions := make([]ActionDescriptor, len(entry.Actions))
		copy(actions, entry.Actions)
		out[i] = EndpointDescriptor{Controller: entry.Controller, Description: entry.Description, Actions: actions}
	}
	return out
}

// Contains reports whether the controller/action pair is registered. The
// comparison is case-insensitive to mirror authorization matching.
func (r *Registry) Contains(controller, action string) bool {
	for _, entry := range r.entries {
		if !strings.EqualFold(entry.Controller, controller) {
			continue
		}
		for _, a := range entry.Actions {
			if strings.EqualFold(a.Name, action) {
				return true
			}
		}
	}
	return false
}
