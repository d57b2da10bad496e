package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vk/gridpipe/internal/ctxlog"
)

// RunFunc executes the task of a node.
type RunFunc func(ctx context.Context, nodeID, task string) error

// ErrSkipped marks nodes that never ran because a dependency failed.
var ErrSkipped = errors.New("skipped")

// Executor runs a graph on a pool of workers.
type Executor struct {
	graph      *Graph
	numWorkers int
	run        RunFunc
	wg         sync.WaitGroup
}

// NewExecutor creates an executor. A non-positive worker count means one
// worker per node, so long-running nodes never starve their siblings.
func NewExecutor(graph *Graph, numWorkers int, run RunFunc) *Executor {
	if numWorkers <= 0 {
		numWorkers = graph.Len()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{graph: graph, numWorkers: numWorkers, run: run}
}

// Run executes the entire graph concurrently and returns an error if any node fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	nodes := e.reset()
	readyChan := make(chan *node, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootNodeCount := 0
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.id)
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes completed.")

	var failedNodes []string
	var rootCauseError error
	canceled := false
	for _, n := range nodes {
		if State(n.state.Load()) != Failed {
			continue
		}
		switch {
		case errors.Is(n.err, ErrSkipped):
		case errors.Is(n.err, context.Canceled), errors.Is(n.err, context.DeadlineExceeded):
			canceled = true
		default:
			failedNodes = append(failedNodes, n.id)
			if rootCauseError == nil {
				rootCauseError = n.err
			}
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	if canceled && ctx.Err() != nil {
		return fmt.Errorf("execution interrupted: %w", ctx.Err())
	}
	return nil
}

// reset prepares the per-run bookkeeping of every node, in insertion order.
func (e *Executor) reset() []*node {
	e.graph.mutex.RLock()
	defer e.graph.mutex.RUnlock()

	nodes := make([]*node, 0, len(e.graph.order))
	for _, id := range e.graph.order {
		n := e.graph.nodes[id]
		n.depCount.Store(int32(len(n.deps)))
		n.state.Store(int32(Pending))
		n.err = nil
		n.skipOnce = new(sync.Once)
		nodes = append(nodes, n)
	}
	return nodes
}

// skipDependents recursively marks all downstream nodes as failed and decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedIDs(n.dependents) {
		dependent := n.dependents[id]
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.id, "dependency", n.id)
			dependent.state.Store(int32(Failed))
			dependent.err = fmt.Errorf("%w due to upstream failure of '%s'", ErrSkipped, n.id)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.id)

		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				workerLogger.Debug("Context canceled, skipping node execution.")
				n.state.Store(int32(Failed))
				n.err = ctx.Err()
				e.wg.Done()
				e.skipDependents(ctx, n)
			})
			continue
		}

		ran := false
		n.skipOnce.Do(func() {
			ran = true
			n.state.Store(int32(Running))
			start := time.Now()
			err := e.run(ctxlog.With(ctx, "nodeID", n.id), n.id, n.task)
			if err != nil {
				workerLogger.Debug("Node execution failed.", "error", err, "duration", time.Since(start))
				n.state.Store(int32(Failed))
				n.err = err
				cancel()
				e.skipDependents(ctx, n)
				e.wg.Done()
				return
			}
			n.state.Store(int32(Done))
			for _, id := range sortedIDs(n.dependents) {
				dependent := n.dependents[id]
				if dependent.depCount.Add(-1) == 0 {
					workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.id)
					readyChan <- dependent
				}
			}
			e.wg.Done()
		})
		if !ran {
			workerLogger.Debug("Node already settled, ignoring.")
		}
	}
}
