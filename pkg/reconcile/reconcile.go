// Package reconcile cross-references a source-of-truth record set against
// comparison sets and produces the run's ordered finding list.
//
// A run combines four finding streams: normalization findings, per-set
// checks (manager references, domains, logins, privileged accounts),
// comparison diffs and validation rules. The merged stream then goes
// through the exception resolver, the disable list, deduplication and a
// deterministic sort.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/exceptions"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/logging"
	"github.com/agentstation/accessreview/pkg/records"
	"github.com/agentstation/accessreview/pkg/rules"
)

// Source is one normalized record set with its own findings and scope.
type Source struct {
	Set        *records.Set
	Findings   []findings.Finding     // from normalization
	Rules      []*rules.Rule          // evaluated before global rules
	Exceptions []exceptions.Exception // tried before global exceptions
}

// Name returns the name of the set.
func (s Source) Name() string {
	if s.Set == nil {
		return ""
	}
	return s.Set.Name()
}

// Input is everything a reconciliation run consumes.
type Input struct {
	Truth       Source
	Comparisons []Source
	Rules       []*rules.Rule
	Exceptions  []exceptions.Exception
}

// Reconciler is the main interface for reconciling record sets.
type Reconciler interface {
	// Reconcile runs all checks and returns the final finding list. Only
	// configuration problems are returned as errors.
	Reconcile(ctx context.Context, in Input) (*Result, error)
}

// reconciler is the default implementation of Reconciler.
type reconciler struct {
	opts *options
}

// New creates a new Reconciler with options.
func New(opts ...Option) (Reconciler, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &reconciler{opts: o}, nil
}

// truthIndex is built once per run and only read afterwards.
type truthIndex struct {
	set     *records.Set
	byEmail map[string]records.Record
}

// Reconcile implements Reconciler.
func (r *reconciler) Reconcile(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapCanceled(err)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	scoped := make(map[string][]exceptions.Exception, len(in.Comparisons)+1)
	sets := make(map[string]*records.Set, len(in.Comparisons)+1)
	for _, s := range append([]Source{in.Truth}, in.Comparisons...) {
		if len(s.Exceptions) > 0 {
			scoped[s.Name()] = s.Exceptions
		}
		sets[s.Name()] = s.Set
	}
	resolver, err := exceptions.NewResolver(in.Exceptions, scoped)
	if err != nil {
		return nil, err
	}

	now := r.opts.now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result := NewResult()
	result.Metadata.EvaluatedAt = now
	result.Metadata.Truth = in.Truth.Name()
	for name, set := range sets {
		result.Metadata.Stats.Records[name] = set.Len()
	}

	log := logging.FromContext(ctx)
	truth := &truthIndex{set: in.Truth.Set, byEmail: in.Truth.Set.IndexBy(fields.Email)}

	// The truth set is checked on its own; each comparison in a worker.
	streams := make([][]findings.Finding, len(in.Comparisons)+1)
	streams[0] = r.analyzeTruth(in.Truth, in.Rules, truth, now)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.parallelism)
	for i, comp := range in.Comparisons {
		result.Metadata.Comparisons = append(result.Metadata.Comparisons, comp.Name())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.WrapCanceled(err)
			}
			wctx := logging.WithComparison(gctx, comp.Name())
			streams[i+1] = r.analyzeComparison(wctx, comp, in.Rules, truth, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []findings.Finding
	for _, s := range streams {
		all = append(all, s...)
	}

	all = resolver.ResolveAll(all, func(source, userID string) (records.Record, bool) {
		set, ok := sets[source]
		if !ok {
			return records.Record{}, false
		}
		if rec, ok := set.Get(userID); ok {
			return rec, true
		}
		// COMPARE_MISSING is reported on the comparison for a truth user.
		return truth.set.Get(userID)
	})

	before := len(all)
	all = findings.Filter(all, r.opts.disabled)
	result.Metadata.Stats.Disabled = before - len(all)

	before = len(all)
	all = findings.Dedupe(all)
	result.Metadata.Stats.Duplicates = before - len(all)

	findings.Sort(all)
	result.Findings = all
	result.Finalize()

	log.Debug().
		Str("truth", result.Metadata.Truth).
		Int("comparisons", len(in.Comparisons)).
		Int("findings", len(all)).
		Dur("duration", result.Metadata.Duration).
		Msg("reconciliation complete")
	return result, nil
}

func validateInput(in Input) error {
	if in.Truth.Set == nil {
		return errors.NewConfigError("reconcile", "no source of truth", nil)
	}
	seen := map[string]bool{in.Truth.Name(): true}
	for i, c := range in.Comparisons {
		if c.Set == nil {
			return errors.NewConfigError("reconcile", fmt.Sprintf("comparison %d has no record set", i+1), nil)
		}
		if seen[c.Name()] {
			return errors.NewConfigError("reconcile", fmt.Sprintf("source name %q used twice", c.Name()), nil)
		}
		seen[c.Name()] = true
	}
	return nil
}

func (r *reconciler) analyzeTruth(src Source, global []*rules.Rule, truth *truthIndex, now time.Time) []findings.Finding {
	out := append([]findings.Finding(nil), src.Findings...)
	out = append(out, r.checkSet(src.Set, truth, now)...)
	out = append(out, rules.Evaluate(src.Set, rules.Merge(src.Rules, global), now)...)
	return out
}

func (r *reconciler) analyzeComparison(ctx context.Context, src Source, global []*rules.Rule, truth *truthIndex, now time.Time) []findings.Finding {
	out := append([]findings.Finding(nil), src.Findings...)
	out = append(out, r.checkSet(src.Set, truth, now)...)
	out = append(out, r.compare(truth.set, src.Set)...)
	out = append(out, rules.Evaluate(src.Set, rules.Merge(src.Rules, global), now)...)

	logging.FromContext(ctx).Debug().
		Int("records", src.Set.Len()).
		Int("findings", len(out)).
		Msg("comparison analyzed")
	return out
}
