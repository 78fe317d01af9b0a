package expr

import "github.com/rosscartlidge/dataflow/pkg/scalar"

// ExpressionExecutor abstracts the strategy used to evaluate an expression
// against a row: walking the tree (always available) or dispatching to a
// pre-compiled native-ABI closure (available once Compile has succeeded).
// This is a direct generalization of the teacher's Executor/ExecutorManager
// backend-selection pattern (pkg/stream/executor.go, cpu_executor.go,
// gpu_executor.go) from "pick a CPU/GPU backend for a stream operation" to
// "pick an interpreted/compiled backend for a row expression."
type ExpressionExecutor interface {
	// CanHandle reports whether this executor can evaluate e at all.
	CanHandle(e Expr) bool
	// Score ranks suitability; higher wins. Mirrors the teacher's
	// GetScore contract.
	Score(e Expr) int
	// Evaluate runs e against row using this executor's strategy.
	Evaluate(e Expr, row scalar.Row) scalar.Scalar
	// Name identifies the executor for diagnostics/logging.
	Name() string
}

// interpretedExecutor walks the tree node by node; always available,
// including for Aggregate sub-expressions the compiler refuses to handle.
type interpretedExecutor struct{}

func (interpretedExecutor) CanHandle(Expr) bool { return true }
func (interpretedExecutor) Score(e Expr) int {
	// Cheap to start up, but each node costs an interface dispatch; the
	// teacher's CPUExecutor.GetScore uses a similar flat baseline score
	// for its universal fallback.
	return 40
}
func (interpretedExecutor) Evaluate(e Expr, row scalar.Row) scalar.Scalar { return e.Evaluate(row) }
func (interpretedExecutor) Name() string                                  { return "interpreted" }

// closureExecutor dispatches to a previously compiled closure. It can only
// handle expressions that are already Compiled (or that it compiles and
// caches on first use); it refuses Aggregate/Empty nodes, exactly as
// expr.Compile does.
type closureExecutor struct {
	cache map[Expr]Compiled
}

func newClosureExecutor() *closureExecutor { return &closureExecutor{cache: map[Expr]Compiled{}} }

func (c *closureExecutor) CanHandle(e Expr) bool {
	switch e.(type) {
	case Aggregate, Empty:
		return false
	default:
		return true
	}
}

// isPreCompiled reports whether e is already a Compiled leaf, e.g. one
// jit_lowering.go installed directly into a plan node. Compiled embeds a
// func field, so it is not a comparable type — it can never be used as a
// map key, and must never reach c.cache.
func isPreCompiled(e Expr) bool {
	_, ok := e.(Compiled)
	return ok
}

func (c *closureExecutor) Score(e Expr) int {
	if !c.CanHandle(e) {
		return 0
	}
	// Deeper trees amortize compilation cost better than shallow ones;
	// this mirrors the teacher's complexity-weighted scoring in
	// estimateFunctionComplexity/GetScore, generalized from "operation
	// size" to "expression depth".
	score := 60
	if e.Depth() >= 3 {
		score += 20
	}
	return score
}

func (c *closureExecutor) Evaluate(e Expr, row scalar.Row) scalar.Scalar {
	if isPreCompiled(e) {
		return e.(Compiled).Evaluate(row)
	}
	compiled, ok := c.cache[e]
	if !ok {
		compiled = Compile(e, nil)
		c.cache[e] = compiled
	}
	return compiled.Evaluate(row)
}

func (c *closureExecutor) Name() string { return "compiled" }

// ExecutorManager coordinates the available executors and selects the best
// one for a given expression, mirroring the teacher's ExecutorManager and
// its global SelectBest loop one-for-one.
type ExecutorManager struct {
	executors []ExpressionExecutor
	fallback  ExpressionExecutor
}

// NewExecutorManager builds a manager with both executors registered, the
// interpreter as fallback (it is the only one that can always handle every
// node, including Aggregate).
func NewExecutorManager() *ExecutorManager {
	em := &ExecutorManager{fallback: interpretedExecutor{}}
	em.executors = append(em.executors, em.fallback, newClosureExecutor())
	return em
}

// SelectBest picks the highest-scoring executor able to handle e.
func (em *ExecutorManager) SelectBest(e Expr) ExpressionExecutor {
	var best ExpressionExecutor
	bestScore := -1
	for _, ex := range em.executors {
		if !ex.CanHandle(e) {
			continue
		}
		if s := ex.Score(e); s > bestScore {
			bestScore, best = s, ex
		}
	}
	if best == nil {
		best = em.fallback
	}
	return best
}

// globalExecutorManager is the transparent, process-wide selection cache —
// the one deliberate exception to "avoid ambient singletons" carried over
// from the teacher's own init()-constructed globalExecutorManager. It is a
// backend-selection cache, not job state, so it does not violate the "no
// ambient singleton for scheduler/registry state" rule in SPEC_FULL.md §9.
var globalExecutorManager = NewExecutorManager()

// Eval evaluates e against row using whichever executor the global manager
// currently scores best — the public entry point operators should call
// instead of choosing an executor themselves.
func Eval(e Expr, row scalar.Row) scalar.Scalar {
	return globalExecutorManager.SelectBest(e).Evaluate(e, row)
}
