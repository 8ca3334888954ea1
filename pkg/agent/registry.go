// Package agent hosts the agent plugin registry and the built-in plugins.
// Plugins are registered explicitly at startup and resolved once into a
// fixed composition; nothing is looked up reflectively at event time.
package agent

import (
	"fmt"
	"sort"

	"github.com/relaykit/relay/pkg/hooks"
)

// Wildcard is the plugin name whose behavior applies to every agent, before
// the agent-specific plugin.
const Wildcard = "*"

// Registry holds the available agent plugins.
type Registry struct {
	plugins map[string]hooks.Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]hooks.Plugin)}
}

// Register adds a plugin. Registering the same name twice is a programming
// error.
func (r *Registry) Register(plugin hooks.Plugin) error {
	name := plugin.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("agent plugin %q already registered", name)
	}
	r.plugins[name] = plugin
	return nil
}

// Names lists the registered agent names, wildcard excluded.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		if name == Wildcard {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve composes the wildcard plugin (when present) with the named one
// into a single fixed plugin: wildcard behavior runs first, the specific
// plugin's last word wins. The composition happens here, once, so event
// handling never builds closures at call time.
func (r *Registry) Resolve(name string) (hooks.Plugin, error) {
	specific, ok := r.plugins[name]
	wildcard, hasWildcard := r.plugins[Wildcard]

	if !ok {
		if !hasWildcard {
			return nil, fmt.Errorf("no agent plugin registered for %q", name)
		}
		return wildcard, nil
	}
	if !hasWildcard {
		return specific, nil
	}

	names := make(map[string]string)
	for raw, canonical := range wildcard.EventNames() {
		names[raw] = canonical
	}
	for raw, canonical := range specific.EventNames() {
		names[raw] = canonical
	}

	var transformer hooks.EventTransformer
	wildcardT, specificT := wildcard.Transformer(), specific.Transformer()
	switch {
	case wildcardT == nil:
		transformer = specificT
	case specificT == nil:
		transformer = wildcardT
	default:
		transformer = func(event hooks.Event) (hooks.Event, error) {
			out, err := wildcardT(event)
			if err != nil {
				return out, err
			}
			return specificT(out)
		}
	}

	adapter := specific.Adapter()
	if adapter == nil {
		adapter = wildcard.Adapter()
	}

	return &composite{
		name:        specific.Name(),
		names:       names,
		transformer: transformer,
		adapter:     adapter,
	}, nil
}

// composite is the resolved wildcard+specific plugin.
type composite struct {
	name        string
	names       map[string]string
	transformer hooks.EventTransformer
	adapter     hooks.SessionAdapter
}

func (c *composite) Name() string                        { return c.name }
func (c *composite) EventNames() map[string]string       { return c.names }
func (c *composite) Transformer() hooks.EventTransformer { return c.transformer }
func (c *composite) Adapter() hooks.SessionAdapter       { return c.adapter }
