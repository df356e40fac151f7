package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
)

// DefaultCompareFields are diffed between the source of truth and each
// comparison when no explicit list is configured.
var DefaultCompareFields = []string{
	fields.FirstName,
	fields.LastName,
	fields.Department,
	fields.Title,
	fields.Email,
	fields.Status,
	fields.Location,
}

// options configures a reconciler.
type options struct {
	registry      *fields.Registry
	compareFields []string
	disabled      map[findings.Code]bool
	domains       map[string]bool
	now           time.Time
	parallelism   int
}

func defaultOptions() *options {
	return &options{
		registry:      fields.Default(),
		compareFields: DefaultCompareFields,
		disabled:      map[findings.Code]bool{},
		domains:       map[string]bool{},
		parallelism:   constants.DefaultParallelism,
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	for _, f := range o.compareFields {
		if _, ok := o.registry.Lookup(f); !ok {
			return nil, errors.NewConfigError("reconcile", fmt.Sprintf("unknown compare field %q", f), nil)
		}
	}
	return o, nil
}

// newOptions returns reconciler options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithRegistry sets the field schema.
func WithRegistry(reg *fields.Registry) Option {
	return func(o *options) error {
		if reg == nil {
			return &errors.ValidationError{Field: "registry", Message: "cannot be nil"}
		}
		o.registry = reg
		return nil
	}
}

// WithCompareFields sets the fields diffed between matched records. An empty
// list keeps the defaults.
func WithCompareFields(names ...string) Option {
	return func(o *options) error {
		if len(names) > 0 {
			o.compareFields = append([]string(nil), names...)
		}
		return nil
	}
}

// WithDisabled suppresses findings with the given codes from the result.
func WithDisabled(codes ...string) Option {
	return func(o *options) error {
		for _, c := range codes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c != "" {
				o.disabled[findings.Code(c)] = true
			}
		}
		return nil
	}
}

// WithDomains sets the approved email domains. Without domains no
// DOMAIN_INVALID findings are produced.
func WithDomains(domains ...string) Option {
	return func(o *options) error {
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				o.domains[d] = true
			}
		}
		return nil
	}
}

// WithNow fixes the evaluation instant used by date operations.
func WithNow(t time.Time) Option {
	return func(o *options) error {
		o.now = t
		return nil
	}
}

// WithParallelism sets how many comparisons are reconciled at once.
func WithParallelism(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxParallelism {
			return &errors.ValidationError{
				Field:   "parallelism",
				Value:   n,
				Message: fmt.Sprintf("must be between 1 and %d", constants.MaxParallelism),
			}
		}
		o.parallelism = n
		return nil
	}
}
