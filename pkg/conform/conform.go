// Package conform turns raw, already rewritten strings into typed field values.
package conform

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
)

var namePattern = regexp.MustCompile(`^[A-Za-z\- ]+$`)

// Conformer validates and normalizes values against field specifications.
// It is safe for concurrent use.
type Conformer struct {
	validate *validator.Validate
	fold     cases.Caser
	mu       sync.Mutex // cases.Caser is stateful
}

// New returns a Conformer.
func New() *Conformer {
	return &Conformer{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		fold:     cases.Fold(),
	}
}

var (
	defaultOnce      sync.Once
	defaultConformer *Conformer
)

// Default returns a shared Conformer.
func Default() *Conformer {
	defaultOnce.Do(func() { defaultConformer = New() })
	return defaultConformer
}

// Conform normalizes raw for spec. It returns ok=false when the field has no
// value: the input is blank, or it is the epoch sentinel date and no rewrite
// produced it. A value that cannot be conformed returns a
// *errors.ValidationError.
func (c *Conformer) Conform(spec fields.Spec, raw string, rewritten bool) (fields.Value, bool, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return fields.Value{}, false, nil
	}

	switch spec.Kind {
	case fields.KindDate:
		t, err := ParseDate(v)
		if err != nil {
			return fields.Value{}, false, errors.NewValidationError(spec.Name, raw, "not a valid date")
		}
		if IsSentinel(t) && !rewritten {
			return fields.Value{}, false, nil
		}
		return fields.TimeValue(t), true, nil

	case fields.KindBool:
		b, err := ParseBool(v)
		if err != nil {
			return fields.Value{}, false, errors.NewValidationError(spec.Name, raw, err.Error())
		}
		return fields.BoolValue(b), true, nil

	case fields.KindName:
		c.mu.Lock()
		folded := c.fold.String(v)
		c.mu.Unlock()
		if !namePattern.MatchString(folded) {
			return fields.Value{}, false, errors.NewValidationError(spec.Name, raw, "name may only contain letters, spaces and hyphens")
		}
		return fields.StringValue(spec.Kind, folded), true, nil

	case fields.KindEmail:
		lower := strings.ToLower(v)
		if err := c.validate.Var(lower, "email"); err != nil {
			return fields.Value{}, false, errors.NewValidationError(spec.Name, raw, "invalid email address")
		}
		return fields.StringValue(spec.Kind, lower), true, nil

	case fields.KindEnum:
		if !spec.Allows(v) {
			return fields.Value{}, false, errors.NewValidationError(spec.Name, raw,
				fmt.Sprintf("must be one of %s", strings.Join(spec.Values, ", ")))
		}
		return fields.StringValue(spec.Kind, v), true, nil

	default:
		return fields.StringValue(fields.KindString, v), true, nil
	}
}

// Conform normalizes raw with the default Conformer.
func Conform(spec fields.Spec, raw string, rewritten bool) (fields.Value, bool, error) {
	return Default().Conform(spec, raw, rewritten)
}

// ParseBool accepts true/false, yes/no and 1/0 in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a valid boolean: %q", s)
	}
}
