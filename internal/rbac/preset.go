package rbac

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresets []byte

// AllResources is the wildcard accepted in preset grants.
const AllResources = "*"

// Catalogue is a set of role presets loaded from YAML.
type Catalogue struct {
	Roles []Preset `yaml:"roles"`
}

// Preset describes one role and the grants it starts with.
type Preset struct {
	Role   Role          `yaml:"role"`
	Label  string        `yaml:"label"`
	Grants []PresetGrant `yaml:"grants"`
}

// PresetGrant allows a list of actions on a resource, or on every resource
// when Resource is "*".
type PresetGrant struct {
	Resource string   `yaml:"resource"`
	Actions  []string `yaml:"actions"`
}

// ParseCatalogue decodes a YAML catalogue.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalogue{}, fmt.Errorf("rbac: parse presets: %w", err)
	}
	return cat, nil
}

// DefaultCatalogue returns the embedded console catalogue.
func DefaultCatalogue() (Catalogue, error) {
	return ParseCatalogue(defaultPresets)
}

// LoadCatalogue reads a catalogue from path, or the embedded default when
// path is empty.
func LoadCatalogue(path string) (Catalogue, error) {
	if path == "" {
		return DefaultCatalogue()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("rbac: read presets: %w", err)
	}
	return ParseCatalogue(data)
}

// Expand resolves wildcards and validates every entry against resources.
func (p Preset) Expand(resources *ResourceRegistry) ([]Grant, error) {
	var grants []Grant
	for _, pg := range p.Grants {
		targets := []Resource{}
		if pg.Resource == AllResources {
			targets = resources.List()
		} else {
			res, err := resources.Parse(pg.Resource)
			if err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Role, err)
			}
			targets = append(targets, res)
		}
		for _, raw := range pg.Actions {
			act, err := ParseAction(raw)
			if err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Role, err)
			}
			for _, res := range targets {
				grants = append(grants, Grant{Role: p.Role, Resource: res, Action: act, Allowed: true})
			}
		}
	}
	return grants, nil
}

// LoadPresets registers every catalogue role that is not registered yet and
// returns how many were added. Existing roles keep their current matrix.
func (r *Registry) LoadPresets(ctx context.Context, cat Catalogue) (int, error) {
	added := 0
	for _, p := range cat.Roles {
		grants, err := p.Expand(r.resources)
		if err != nil {
			return added, err
		}
		if _, err := r.RegisterRole(ctx, p.Role, p.Label, grants); err != nil {
			if errors.Is(err, ErrDuplicateRole) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
