// Package graph runs small state machines of LLM calls. A graph is a set
// of named nodes that transform a state value, joined by fixed or
// conditional edges from Start to End. With a Checkpointer, state is saved
// per thread after every node and a later run on the same thread continues
// from it.
package graph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
)

// Reserved node names.
const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultRecursionLimit bounds the number of node executions in one run.
const DefaultRecursionLimit = 25

var (
	// ErrNoEntry is returned by Compile when nothing leaves Start.
	ErrNoEntry = errors.New("graph: no edge from start")
	// ErrRecursionLimit is returned when a run executes more nodes than allowed.
	ErrRecursionLimit = errors.New("graph: recursion limit reached")
)

// NodeFunc transforms the state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc picks the next node from the state.
type RouterFunc[S any] func(ctx context.Context, state S) (string, error)

// Merger is implemented by states that combine new input with a state
// restored from a checkpoint. States without it take the new input as is.
type Merger[S any] interface {
	Merge(input S) S
}

// Builder assembles a graph.
type Builder[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	errs    []error
}

// NewBuilder returns an empty Builder.
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]RouterFunc[S]),
	}
}

// AddNode adds a node.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	switch {
	case name == "" || name == Start || name == End:
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %q has no function", name))
	case b.nodes[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
	default:
		b.nodes[name] = fn
	}
	return b
}

// AddEdge routes from one node to another unconditionally. Each node has
// at most one fixed edge.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if prev, ok := b.edges[from]; ok && prev != to {
		b.errs = append(b.errs, fmt.Errorf("node %q already routes to %q", from, prev))
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges routes from a node to whatever router returns. A
// router takes precedence over a fixed edge from the same node.
func (b *Builder[S]) AddConditionalEdges(from string, router RouterFunc[S]) *Builder[S] {
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has a nil router", from))
		return b
	}
	b.routers[from] = router
	return b
}

type compileConfig struct {
	checkpointer   Checkpointer
	recursionLimit int
	logger         *slog.Logger
}

// CompileOption configures a compiled graph.
type CompileOption func(*compileConfig)

// WithCheckpointer saves state per thread.
func WithCheckpointer(c Checkpointer) CompileOption {
	return func(cfg *compileConfig) { cfg.checkpointer = c }
}

// WithRecursionLimit sets the default node execution limit.
func WithRecursionLimit(n int) CompileOption {
	return func(cfg *compileConfig) { cfg.recursionLimit = n }
}

// WithLogger sets the graph's logger.
func WithLogger(l *slog.Logger) CompileOption {
	return func(cfg *compileConfig) { cfg.logger = l }
}

// Compile validates the graph. Fixed edges must name known nodes and every
// node must be reachable from Start.
func (b *Builder[S]) Compile(opts ...CompileOption) (*Graph[S], error) {
	cfg := compileConfig{recursionLimit: DefaultRecursionLimit, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	errs := append([]error{}, b.errs...)
	if _, ok := b.edges[Start]; !ok && b.routers[Start] == nil {
		errs = append(errs, ErrNoEntry)
	}
	for _, from := range sortedKeys(b.edges) {
		to := b.edges[from]
		if from != Start && b.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if to != End && b.nodes[to] == nil {
			errs = append(errs, fmt.Errorf("edge to unknown node %q", to))
		}
	}
	for _, from := range sortedKeys(b.routers) {
		if from != Start && b.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("conditional edges from unknown node %q", from))
		}
	}
	for _, name := range sortedKeys(b.nodes) {
		if _, ok := b.edges[name]; !ok && b.routers[name] == nil {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}
	if len(errs) == 0 {
		if unreached := b.unreachable(); len(unreached) > 0 {
			errs = append(errs, fmt.Errorf("nodes not reachable from start: %v", unreached))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	g := &Graph[S]{
		nodes:   make(map[string]NodeFunc[S], len(b.nodes)),
		edges:   make(map[string]string, len(b.edges)),
		routers: make(map[string]RouterFunc[S], len(b.routers)),
		cfg:     cfg,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	for k, v := range b.routers {
		g.routers[k] = v
	}
	return g, nil
}

// unreachable lists nodes with no fixed path from Start. Nodes after a
// router are treated as reachable since routers may return any name.
func (b *Builder[S]) unreachable() []string {
	if len(b.routers) > 0 {
		return nil
	}
	seen := map[string]bool{}
	for cur := Start; cur != End && !seen[cur]; cur = b.edges[cur] {
		seen[cur] = true
	}
	var out []string
	for _, name := range sortedKeys(b.nodes) {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Graph is a compiled, immutable graph. It is safe for concurrent use by
// runs on different threads.
type Graph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	cfg     compileConfig
}

// RunConfig configures one run.
type RunConfig struct {
	// ThreadID selects the checkpoint thread. Empty disables checkpoints.
	ThreadID string
	// RecursionLimit overrides the compiled limit when positive.
	RecursionLimit int
}

// Update is the state after a node ran.
type Update[S any] struct {
	Node  string
	Step  int
	State S
}

// Invoke runs the graph to End and returns the final state.
func (g *Graph[S]) Invoke(ctx context.Context, input S, cfg RunConfig) (S, error) {
	state := input
	for u, err := range g.Stream(ctx, input, cfg) {
		if err != nil {
			return state, err
		}
		state = u.State
	}
	return state, nil
}

// Stream runs the graph and yields the state after each node. The first
// update is the starting state under the name Start. Iteration stops after
// the first error.
func (g *Graph[S]) Stream(ctx context.Context, input S, cfg RunConfig) iter.Seq2[Update[S], error] {
	return func(yield func(Update[S], error) bool) {
		var zero Update[S]

		state, err := g.initialState(ctx, input, cfg.ThreadID)
		if err != nil {
			yield(zero, err)
			return
		}
		if !yield(Update[S]{Node: Start, State: state}, nil) {
			return
		}

		limit := g.cfg.recursionLimit
		if cfg.RecursionLimit > 0 {
			limit = cfg.RecursionLimit
		}
		logger := g.cfg.logger.With("thread_id", cfg.ThreadID)

		cur := Start
		for step := 1; ; step++ {
			next, err := g.next(ctx, cur, state)
			if err != nil {
				yield(zero, err)
				return
			}
			if next == End {
				return
			}
			if step > limit {
				yield(zero, fmt.Errorf("%w (%d) without reaching end", ErrRecursionLimit, limit))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			logger.Debug("running node", "node", next, "step", step)
			state, err = g.nodes[next](ctx, state)
			if err != nil {
				yield(zero, fmt.Errorf("node %s: %w", next, err))
				return
			}
			if err := g.save(ctx, cfg.ThreadID, next, step, state); err != nil {
				yield(zero, err)
				return
			}
			if !yield(Update[S]{Node: next, Step: step, State: state}, nil) {
				return
			}
			cur = next
		}
	}
}

func (g *Graph[S]) next(ctx context.Context, cur string, state S) (string, error) {
	if router := g.routers[cur]; router != nil {
		next, err := router(ctx, state)
		if err != nil {
			return "", fmt.Errorf("routing from %s: %w", cur, err)
		}
		if next != End && g.nodes[next] == nil {
			return "", fmt.Errorf("routing from %s: unknown node %q", cur, next)
		}
		return next, nil
	}
	return g.edges[cur], nil
}

func (g *Graph[S]) initialState(ctx context.Context, input S, threadID string) (S, error) {
	if g.cfg.checkpointer == nil || threadID == "" {
		return input, nil
	}
	var saved S
	found, err := LoadState(ctx, g.cfg.checkpointer, threadID, &saved)
	if err != nil || !found {
		return input, err
	}
	if m, ok := any(saved).(Merger[S]); ok {
		return m.Merge(input), nil
	}
	return input, nil
}

func (g *Graph[S]) save(ctx context.Context, threadID, node string, step int, state S) error {
	if g.cfg.checkpointer == nil || threadID == "" {
		return nil
	}
	return SaveState(ctx, g.cfg.checkpointer, threadID, node, step, state)
}
