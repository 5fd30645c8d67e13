// Package worker fans candidate processing out across goroutines while
// keeping per-document order. Candidates are routed to a shard by doc id, so
// chunks of one document apply serially and documents proceed in parallel.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/procgraph/internal/core"
	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/logger"
)

type job struct {
	raw   model.RawExtraction
	reply chan<- Result
}

// Result pairs an outcome with the submission error, if any. Invalid
// candidates surface here; they never stop the pool.
type Result struct {
	Outcome *model.MergeOutcome
	Err     error
}

type Pool struct {
	engine   *core.Engine
	shards   []chan job
	group    *errgroup.Group
	groupCtx context.Context
	log      *logger.Logger
}

func NewPool(engine *core.Engine, workers, depth int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1
	}
	shards := make([]chan job, workers)
	for i := range shards {
		shards[i] = make(chan job, depth)
	}
	return &Pool{
		engine: engine,
		shards: shards,
		log:    log.With("component", "WorkerPool"),
	}
}

// Start launches one goroutine per shard. The pool stops when Stop is called
// or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.group, p.groupCtx = errgroup.WithContext(ctx)
	for i, ch := range p.shards {
		ch := ch
		p.group.Go(func() error {
			for j := range ch {
				outcome, err := p.engine.ProcessCandidate(p.groupCtx, j.raw)
				if j.reply != nil {
					j.reply <- Result{Outcome: outcome, Err: err}
				} else if err != nil {
					p.log.Error("candidate failed", "doc", j.raw.Source.DocID, "chunk", j.raw.Source.ChunkID, "error", err)
				}
			}
			return nil
		})
		p.log.Debug("shard started", "shard", i)
	}
}

// Submit enqueues a candidate and returns without waiting. Ordering holds
// per document: two submissions with the same doc id run in submission order.
func (p *Pool) Submit(ctx context.Context, raw model.RawExtraction) error {
	return p.enqueue(ctx, job{raw: raw})
}

// ProcessBatch pushes a batch through the pool and collects results in input
// order. Chunks of the same document keep their relative order; distinct
// documents run concurrently.
func (p *Pool) ProcessBatch(ctx context.Context, raws []model.RawExtraction) ([]Result, error) {
	replies := make([]chan Result, len(raws))
	for i, raw := range raws {
		ch := make(chan Result, 1)
		replies[i] = ch
		if err := p.enqueue(ctx, job{raw: raw, reply: ch}); err != nil {
			return nil, err
		}
	}
	out := make([]Result, len(raws))
	for i, ch := range replies {
		select {
		case out[i] = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// Stop drains the queues and waits for in-flight work.
func (p *Pool) Stop() error {
	for _, ch := range p.shards {
		close(ch)
	}
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// enqueue routes to a shard. Submissions must not race Stop; a pool is
// either accepting work or shutting down, never both.
func (p *Pool) enqueue(ctx context.Context, j job) error {
	if p.group == nil {
		return fmt.Errorf("pool not started")
	}
	select {
	case <-p.groupCtx.Done():
		return fmt.Errorf("pool stopped: %w", p.groupCtx.Err())
	default:
	}
	shard := p.shards[shardFor(j.raw.Source.DocID, len(p.shards))]
	select {
	case shard <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.groupCtx.Done():
		return p.groupCtx.Err()
	}
}

func shardFor(docID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(n))
}
