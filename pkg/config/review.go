package config

import (
	"path/filepath"
	"strings"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
)

// Source is one dataset of a review.
type Source struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source" validate:"required"`
	Map    string `yaml:"map" validate:"required"`
	Rules  string `yaml:"rules"`
}

// SafeName returns the source name for use in file names.
func (s Source) SafeName() string { return SafeName(s.Name) }

// Review is a review configuration file.
type Review struct {
	Name          string   `yaml:"name"`
	Truth         Source   `yaml:"truth" validate:"required"`
	Comparisons   []Source `yaml:"comparisons" validate:"dive"`
	Rules         string   `yaml:"rules"`
	Output        string   `yaml:"output"`
	Disable       []string `yaml:"disable" validate:"dive,required"`
	Domains       []string `yaml:"domains" validate:"dive,fqdn"`
	CompareFields []string `yaml:"compare_fields" validate:"dive,required"`
	Parallelism   int      `yaml:"parallelism" validate:"gte=0,lte=32"`

	path string
	dir  string
}

// LoadReview reads and validates a review file. Source names default to
// the stem of their data file and the review name to the stem of path.
func LoadReview(path string) (*Review, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapIO("resolve", path, err)
	}

	var r Review
	if err := readYAML(abs, &r); err != nil {
		return nil, err
	}
	if err := checkStruct("review "+path, &r); err != nil {
		return nil, err
	}

	r.path = abs
	r.dir = filepath.Dir(abs)
	if r.Name == "" {
		r.Name = stem(abs)
	}
	if r.Truth.Name == "" {
		r.Truth.Name = stem(r.Truth.Source)
	}
	for i := range r.Comparisons {
		if r.Comparisons[i].Name == "" {
			r.Comparisons[i].Name = stem(r.Comparisons[i].Source)
		}
	}
	if r.Output == "" {
		r.Output = constants.DefaultOutputPrefix
	}
	return &r, nil
}

// Path returns the absolute path of the review file.
func (r *Review) Path() string { return r.path }

// Resolve returns p relative to the review file's directory, unless it is
// absolute or empty.
func (r *Review) Resolve(p string) string {
	return resolve(r.dir, p)
}

// Sources returns the truth followed by the comparisons.
func (r *Review) Sources() []Source {
	return append([]Source{r.Truth}, r.Comparisons...)
}

// BaselinePath returns where the normalized baseline of src is written.
// The truth baseline carries no source name.
func (r *Review) BaselinePath(src Source) string {
	if src.Name == r.Truth.Name {
		return r.Resolve(r.Output) + constants.BaselineSuffix
	}
	return r.Resolve(r.Output) + "_" + src.SafeName() + constants.BaselineSuffix
}

// FindingsPath returns where the findings report is written.
func (r *Review) FindingsPath() string {
	return r.Resolve(r.Output) + constants.FindingsSuffix
}

// ReceiptPath returns where the audit receipt is written.
func (r *Review) ReceiptPath() string {
	return r.Resolve(r.Output) + constants.ReceiptSuffix
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
