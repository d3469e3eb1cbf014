package rbac

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vitrine-commerce/vitrine/internal/shared"
)

var resourceKey = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// ResourceRegistry is the fixed set of resource keys known to a deployment.
// It is immutable once built and safe for concurrent use.
type ResourceRegistry struct {
	order []Resource
	index map[Resource]struct{}
}

// NewResourceRegistry validates and indexes the given keys, keeping their order.
func NewResourceRegistry(keys ...string) (*ResourceRegistry, error) {
	reg := &ResourceRegistry{index: make(map[Resource]struct{}, len(keys))}
	for _, raw := range keys {
		key := strings.ToLower(strings.TrimSpace(raw))
		if !resourceKey.MatchString(key) {
			return nil, fmt.Errorf("%w: malformed key %q", ErrUnknownResource, raw)
		}
		res := Resource(key)
		if _, dup := reg.index[res]; dup {
			continue
		}
		reg.index[res] = struct{}{}
		reg.order = append(reg.order, res)
	}
	return reg, nil
}

// DefaultResources builds the registry of every console screen.
func DefaultResources() *ResourceRegistry {
	reg, err := NewResourceRegistry(shared.ConsoleResources()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Known reports whether res is registered.
func (r *ResourceRegistry) Known(res Resource) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[res]
	return ok
}

// Parse normalises raw input and rejects keys outside the registry.
func (r *ResourceRegistry) Parse(raw string) (Resource, error) {
	res := Resource(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Known(res) {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, raw)
	}
	return res, nil
}

// List returns the resources in declaration order.
func (r *ResourceRegistry) List() []Resource {
	if r == nil {
		return nil
	}
	out := make([]Resource, len(r.order))
	copy(out, r.order)
	return out
}
