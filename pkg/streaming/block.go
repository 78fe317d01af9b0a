package streaming

// BatchModeKind selects how an End operator groups payload elements before
// emitting a FlushBatch mark (§4.4 "End operator").
type BatchModeKind uint8

const (
	BatchSingle BatchModeKind = iota
	BatchFixedSize
	BatchTimeBounded
)

// BatchMode configures an End operator's batching discipline.
type BatchMode struct {
	Kind       BatchModeKind
	Size       int   // valid for BatchFixedSize
	BoundNanos int64 // valid for BatchTimeBounded
}

func SingleBatch() BatchMode           { return BatchMode{Kind: BatchSingle} }
func FixedSizeBatch(n int) BatchMode   { return BatchMode{Kind: BatchFixedSize, Size: n} }
func TimeBoundedBatch(ns int64) BatchMode { return BatchMode{Kind: BatchTimeBounded, BoundNanos: ns} }

// Scheduling bundles the replication policy and optional placement layer
// carried by a Block (§3).
type Scheduling struct {
	Replication Replication
	Layer       string // empty means untagged: runs on any layer
	Requirement func(capabilities map[string]string) bool // host capability predicate DSL (§4.6 step 2); nil means no requirement
}

// IterationContext is the stack of opaque lock-handle ids identifying the
// iteration brackets a block is nested inside (§4.8, §9 "Cyclic
// references"). The handles are looked up in an iteration.Registry; this
// package only carries the ids so that streaming stays independent of the
// iteration package (iteration depends on streaming, not vice versa).
type IterationContext []int

// Operator is the capability set every concrete operator implements (§9
// "Deep polymorphism on operators"): it can be set up with metadata, pulled
// for its next element, and asked to describe its position in the block
// graph.
type Operator interface {
	Setup(meta *ExecutionMetadata)
	Next() (Element, error)
	Structure() BlockStructure
}

// ExecutionMetadata is threaded into every operator at Setup time; it
// carries the replica's own coordinate and a logger/tracing hook supplied
// by the runtime driver (kept as `any` here to avoid this package
// depending on the logging library directly).
type ExecutionMetadata struct {
	Self   Coord
	Logger any
}

// BlockStructure is a small descriptive record an operator can report for
// diagnostics/tracing (mirrors the "structure() -> BlockStructure"
// capability named in §9).
type BlockStructure struct {
	Name     string
	Parallel int
}

// Block is the immutable-after-build unit of scheduling: a numbered chain
// of operators sharing one BatchMode, one Scheduling record, and one
// iteration context (§3 "Block").
type Block struct {
	ID         int
	Chain      Stream // the composed operator pipeline, head to tail
	Batch      BatchMode
	Iteration  IterationContext
	Scheduling Scheduling
}
