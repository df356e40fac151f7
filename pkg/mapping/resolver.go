package mapping

import (
	"fmt"
	"maps"
	"sync"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
)

// Resolver flattens definitions and memoizes the result per name.
type Resolver struct {
	defs map[string]Definition

	mu   sync.Mutex
	memo map[string]*Resolved
}

// NewResolver indexes the definitions by name. Names must be unique.
func NewResolver(defs ...Definition) (*Resolver, error) {
	r := &Resolver{
		defs: make(map[string]Definition, len(defs)),
		memo: make(map[string]*Resolved),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.NewConfigError("mapping", "definition without name", nil)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, errors.NewConfigError("mapping", fmt.Sprintf("definition %q declared twice", d.Name), nil)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Resolve returns the flattened mapping for name. Child column and rewrite
// entries replace the parent's entries for the same field.
func (r *Resolver) Resolve(name string) (*Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.memo[name]; ok {
		return m, nil
	}

	chain, err := r.chain(name)
	if err != nil {
		return nil, err
	}

	cols := make(map[string]string)
	rewrite := make(map[string][]RewriteRule)
	for i := len(chain) - 1; i >= 0; i-- {
		d := r.defs[chain[i]]
		maps.Copy(cols, d.Columns)
		for f, rules := range d.Rewrite {
			rewrite[f] = append([]RewriteRule(nil), rules...)
		}
	}

	m, err := newResolved(name, chain, cols, rewrite)
	if err != nil {
		return nil, err
	}
	r.memo[name] = m
	return m, nil
}

// chain walks inheritance from name to the root, detecting cycles.
func (r *Resolver) chain(name string) ([]string, error) {
	var chain []string
	seen := make(map[string]bool)
	for cur := name; cur != ""; {
		if seen[cur] {
			return nil, errors.NewInheritanceError(append(chain, cur), "inheritance cycle", errors.ErrInheritanceCycle)
		}
		d, ok := r.defs[cur]
		if !ok {
			if len(chain) == 0 {
				return nil, errors.NewConfigError("mapping", fmt.Sprintf("definition %q not found", cur), errors.NewNotFoundError("mapping", cur))
			}
			return nil, errors.NewInheritanceError(append(chain, cur), "parent not found", errors.NewNotFoundError("mapping", cur))
		}
		seen[cur] = true
		chain = append(chain, cur)
		if len(chain) > constants.MaxInheritanceDepth {
			return nil, errors.NewInheritanceError(chain, "inheritance chain too deep", nil)
		}
		cur = d.Inherit
	}
	return chain, nil
}

// Resolve flattens a single definition graph without keeping a Resolver.
func Resolve(name string, defs ...Definition) (*Resolved, error) {
	r, err := NewResolver(defs...)
	if err != nil {
		return nil, err
	}
	return r.Resolve(name)
}
