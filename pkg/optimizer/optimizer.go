// Package optimizer rewrites a logical plan through a fixed rule order —
// predicate pushdown, projection pushdown, group-by/select fusion, and
// (optionally) JIT lowering — iterating each rule to its own fixed point,
// per §4.3.
package optimizer

import (
	"fmt"
	"reflect"

	"github.com/rosscartlidge/dataflow/pkg/logical"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

// Rule is one optimization pass over a logical plan.
type Rule interface {
	Name() string
	Optimize(plan logical.Plan) (logical.Plan, error)
}

// OptimizerError reports a failure during plan rewriting (e.g. a rule that
// cannot recompute a consistent schema); schema mismatches are surfaced,
// never silently coerced, per §7.
type OptimizerError struct {
	Rule string
	Err  error
}

func (e *OptimizerError) Error() string { return fmt.Sprintf("optimizer: rule %s: %v", e.Rule, e.Err) }
func (e *OptimizerError) Unwrap() error { return e.Err }

// Options gates optional rewrites; JIT lowering runs only when
// EnableJITLowering is set (the zero value leaves it off).
type Options struct {
	EnableJITLowering bool
}

// Optimize runs the fixed rule order of §4.3 to a fixed point on each rule,
// then (optionally) JIT-lowers the result. The output schema is always
// checked against the input schema (§8 invariant 5:
// optimize(p).schema() == p.schema()).
func Optimize(plan logical.Plan, opts Options) (logical.Plan, error) {
	originalSchema := plan.Schema()

	rules := []Rule{
		PredicatePushdown{},
		ProjectionPushdown{},
		GroupBySelectFusion{},
	}

	cur := plan
	for _, rule := range rules {
		fixed, err := toFixedPoint(rule, cur)
		if err != nil {
			return nil, &OptimizerError{Rule: rule.Name(), Err: err}
		}
		cur = fixed
	}

	if opts.EnableJITLowering {
		cur = lowerJIT(cur)
	}

	if !schemaEqual(originalSchema, cur.Schema()) {
		return nil, &OptimizerError{Rule: "schema-check", Err: fmt.Errorf("schema changed: %v -> %v", originalSchema, cur.Schema())}
	}

	return cur, nil
}

// toFixedPoint re-applies rule until the plan stops changing or a bound on
// iterations is hit (a defensive cap — a correctly specified rule set
// converges in a handful of passes since each pass strictly shrinks the
// set of reorderable atoms).
func toFixedPoint(rule Rule, plan logical.Plan) (logical.Plan, error) {
	const maxIterations = 64
	cur := plan
	for i := 0; i < maxIterations; i++ {
		next, err := rule.Optimize(cur)
		if err != nil {
			return nil, err
		}
		if planEqual(cur, next) {
			return next, nil
		}
		cur = next
	}
	return cur, nil
}

// planEqual is a structural equality check used only to detect fixed-point
// convergence; it is not part of the public plan API.
func planEqual(a, b logical.Plan) bool {
	return reflect.DeepEqual(a, b)
}

func schemaEqual(a, b scalar.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
