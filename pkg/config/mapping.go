package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/mapping"
)

// mappingFile is the YAML layout of a mapping file.
//
//	inherit: base.yaml
//	mapping:
//	  user_id: Employee ID
//	rewrite:
//	  status:                       # ordered list
//	    - exact: Enabled
//	      value: active
//	    - regex: '^Term'
//	      value: deleted
//	  department:                   # replacement: pattern, in order
//	    Engineering: '^(Eng|R&D)'
//	    Unknown: ~                  # matches an empty value
type mappingFile struct {
	Inherit string         `yaml:"inherit"`
	Mapping map[string]any `yaml:"mapping"`
	Rewrite map[string]any `yaml:"rewrite"`
}

// Mappings loads mapping files and every file they inherit from. Each
// definition is named by the absolute path of its file.
type Mappings struct {
	defs  map[string]mapping.Definition
	order []string
}

// NewMappings returns an empty mapping loader.
func NewMappings() *Mappings {
	return &Mappings{defs: make(map[string]mapping.Definition)}
}

// Load reads the mapping file at path, and the files it inherits from, and
// returns the definition name to resolve. Files already loaded are not
// read again; inheritance cycles are reported when the name is resolved.
func (m *Mappings) Load(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WrapIO("resolve", path, err)
	}
	if _, ok := m.defs[abs]; ok {
		return abs, nil
	}

	var f mappingFile
	if err := readYAML(abs, &f); err != nil {
		return "", err
	}
	def, err := f.definition(abs)
	if err != nil {
		return "", err
	}
	m.defs[abs] = def
	m.order = append(m.order, abs)

	if def.Inherit != "" {
		if _, err := m.Load(def.Inherit); err != nil {
			return "", err
		}
	}
	return abs, nil
}

// Definitions returns the loaded definitions in load order.
func (m *Mappings) Definitions() []mapping.Definition {
	out := make([]mapping.Definition, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.defs[name])
	}
	return out
}

// Files returns the paths of every loaded mapping file.
func (m *Mappings) Files() []string {
	return append([]string(nil), m.order...)
}

func (f mappingFile) definition(path string) (mapping.Definition, error) {
	def := mapping.Definition{
		Name:    path,
		Columns: make(map[string]string, len(f.Mapping)),
		Rewrite: make(map[string][]mapping.RewriteRule, len(f.Rewrite)),
	}
	if f.Inherit != "" {
		def.Inherit = resolve(filepath.Dir(path), f.Inherit)
	}
	for field, col := range f.Mapping {
		def.Columns[field] = text(col)
	}

	fields := make([]string, 0, len(f.Rewrite))
	for field := range f.Rewrite {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		rules, err := parseRewrite(f.Rewrite[field])
		if err != nil {
			return def, errors.NewConfigError("mapping "+path, fmt.Sprintf("rewrite for %s: %v", field, err), err)
		}
		def.Rewrite[field] = rules
	}
	return def, nil
}

// parseRewrite accepts an ordered list of {exact|regex|capture: pattern,
// value: replacement} entries, or an ordered replacement: pattern map where
// a null pattern matches an empty value.
func parseRewrite(v any) ([]mapping.RewriteRule, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case yaml.MapSlice:
		out := make([]mapping.RewriteRule, 0, len(t))
		for _, item := range t {
			dst := text(item.Key)
			if item.Value == nil {
				out = append(out, mapping.RewriteRule{Kind: mapping.MatchExact, Pattern: "", Replacement: dst})
				continue
			}
			out = append(out, mapping.RewriteRule{
				Kind:        mapping.MatchCapture,
				Pattern:     text(item.Value),
				Replacement: Backrefs(dst),
			})
		}
		return out, nil
	case []any:
		out := make([]mapping.RewriteRule, 0, len(t))
		for i, e := range t {
			r, err := parseRewriteEntry(e)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i+1, err)
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list or a map, got %T", v)
	}
}

func parseRewriteEntry(e any) (mapping.RewriteRule, error) {
	entry := map[string]any{}
	switch t := e.(type) {
	case yaml.MapSlice:
		for _, item := range t {
			entry[strings.ToLower(text(item.Key))] = item.Value
		}
	case map[string]any:
		for k, v := range t {
			entry[strings.ToLower(k)] = v
		}
	default:
		return mapping.RewriteRule{}, fmt.Errorf("expected a map, got %T", e)
	}

	value, ok := entry["value"]
	if !ok {
		return mapping.RewriteRule{}, fmt.Errorf("missing value")
	}
	delete(entry, "value")
	if len(entry) != 1 {
		return mapping.RewriteRule{}, fmt.Errorf("need exactly one of exact, regex or capture")
	}
	var key string
	for k := range entry {
		key = k
	}
	kind, err := mapping.ParseMatchKind(key)
	if err != nil {
		return mapping.RewriteRule{}, err
	}
	r := mapping.RewriteRule{Kind: kind, Pattern: text(entry[key]), Replacement: text(value)}
	if kind == mapping.MatchCapture {
		r.Replacement = Backrefs(r.Replacement)
	}
	return r, nil
}

var backref = regexp.MustCompile(`\\(\d+)|\\g<(\w+)>`)

// Backrefs rewrites \1 and \g<name> group references in a replacement to
// the ${1} and ${name} form used by regexp.Expand.
func Backrefs(s string) string {
	return backref.ReplaceAllStringFunc(s, func(m string) string {
		sub := backref.FindStringSubmatch(m)
		if sub[1] != "" {
			return "${" + sub[1] + "}"
		}
		return "${" + sub[2] + "}"
	})
}
