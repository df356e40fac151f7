// Package accessreview runs an access review: it normalizes a source of
// truth and any number of comparison exports into the fixed field schema,
// then reconciles them into one ordered list of findings.
//
// Run is the library entry point. Everything it needs is passed in a Plan;
// no process-global state is consulted.
package accessreview

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/exceptions"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/logging"
	"github.com/agentstation/accessreview/pkg/mapping"
	"github.com/agentstation/accessreview/pkg/normalize"
	"github.com/agentstation/accessreview/pkg/reconcile"
	"github.com/agentstation/accessreview/pkg/records"
	"github.com/agentstation/accessreview/pkg/rules"
)

// Dataset is one loaded export together with the mapping and scoped rules
// that apply to it.
type Dataset struct {
	Name       string
	Mapping    string // name of a definition in Plan.Mappings
	Headers    []string
	Rows       []normalize.Row
	Rules      []rules.Definition
	Exceptions []exceptions.Exception
}

// Plan describes one review run.
type Plan struct {
	Truth       Dataset
	Comparisons []Dataset
	Mappings    []mapping.Definition

	// Global rules and exceptions, tried after the dataset-scoped ones.
	Rules      []rules.Definition
	Exceptions []exceptions.Exception

	Disable       []string
	Domains       []string
	CompareFields []string
	Parallelism   int
	Now           time.Time        // zero means time.Now
	Registry      *fields.Registry // nil means fields.Default
}

// Report is the outcome of a run.
type Report struct {
	// Baselines holds the normalized set of every dataset, truth first.
	Baselines []*records.Set
	Result    *reconcile.Result
}

// Findings returns the final finding list.
func (r *Report) Findings() []findings.Finding {
	if r.Result == nil {
		return nil
	}
	return r.Result.Findings
}

// Baseline returns the normalized set named name.
func (r *Report) Baseline(name string) (*records.Set, bool) {
	for _, s := range r.Baselines {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Run normalizes every dataset of plan and reconciles them. Configuration
// problems abort the run with an error before any finding is produced.
func Run(ctx context.Context, plan Plan) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithOperation(ctx, "run")

	if err := plan.validate(); err != nil {
		return nil, err
	}

	reg := plan.Registry
	if reg == nil {
		reg = fields.Default()
	}
	now := plan.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	parallelism := plan.Parallelism
	if parallelism == 0 {
		parallelism = constants.DefaultParallelism
	}

	resolver, err := mapping.NewResolver(plan.Mappings...)
	if err != nil {
		return nil, err
	}
	global, err := rules.CompileAll(plan.Rules)
	if err != nil {
		return nil, err
	}

	rec, err := reconcile.New(
		reconcile.WithRegistry(reg),
		reconcile.WithCompareFields(plan.CompareFields...),
		reconcile.WithDisabled(plan.Disable...),
		reconcile.WithDomains(plan.Domains...),
		reconcile.WithNow(now),
		reconcile.WithParallelism(parallelism),
	)
	if err != nil {
		return nil, err
	}

	datasets := append([]Dataset{plan.Truth}, plan.Comparisons...)
	sources, err := prepare(ctx, datasets, resolver, normalize.New(normalize.WithRegistry(reg)), parallelism)
	if err != nil {
		return nil, err
	}

	result, err := rec.Reconcile(ctx, reconcile.Input{
		Truth:       sources[0],
		Comparisons: sources[1:],
		Rules:       global,
		Exceptions:  plan.Exceptions,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Result: result}
	for _, s := range sources {
		report.Baselines = append(report.Baselines, s.Set)
	}

	logging.FromContext(ctx).Info().
		Str("truth", plan.Truth.Name).
		Int("comparisons", len(plan.Comparisons)).
		Int("findings", result.Metadata.Stats.Total).
		Msg("review complete")
	return report, nil
}

// prepare resolves mappings, compiles scoped rules and normalizes every
// dataset. Results keep the order of datasets.
func prepare(ctx context.Context, datasets []Dataset, resolver *mapping.Resolver, pipeline *normalize.Pipeline, limit int) ([]reconcile.Source, error) {
	out := make([]reconcile.Source, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ds := range datasets {
		g.Go(func() error {
			m, err := resolver.Resolve(ds.Mapping)
			if err != nil {
				return err
			}
			logging.FromContext(gctx).Debug().
				Str("source", ds.Name).
				Strs("mapping_chain", m.Chain()).
				Msg("mapping resolved")
			scoped, err := rules.CompileAll(ds.Rules)
			if err != nil {
				return errors.WrapConfig("rules for "+ds.Name, err)
			}
			set, fs, err := pipeline.Normalize(gctx, ds.Name, ds.Headers, ds.Rows, m)
			if err != nil {
				return err
			}
			out[i] = reconcile.Source{
				Set:        set,
				Findings:   fs,
				Rules:      scoped,
				Exceptions: ds.Exceptions,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p Plan) validate() error {
	if p.Truth.Name == "" {
		return errors.NewConfigError("plan", "source of truth has no name", nil)
	}
	seen := map[string]bool{}
	for _, ds := range append([]Dataset{p.Truth}, p.Comparisons...) {
		if ds.Name == "" {
			return errors.NewConfigError("plan", "dataset has no name", nil)
		}
		if seen[ds.Name] {
			return errors.NewConfigError("plan", fmt.Sprintf("dataset name %q used twice", ds.Name), nil)
		}
		seen[ds.Name] = true
		if ds.Mapping == "" {
			return errors.NewConfigError("plan", fmt.Sprintf("dataset %q has no mapping", ds.Name), nil)
		}
	}
	return nil
}
