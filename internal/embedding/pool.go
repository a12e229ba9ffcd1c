package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent calls into an Encoder. Large inputs are split into sub-batches that are
// encoded in parallel (at most workers at a time) and reassembled in input order.
type Pool struct {
	enc       Encoder
	sem       *semaphore.Weighted
	batchSize int
	timeout   time.Duration
}

// NewPool wraps enc. workers and batchSize default to 1 and 64; timeout <= 0 disables the per-call limit.
func NewPool(enc Encoder, workers, batchSize int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pool{
		enc:       enc,
		sem:       semaphore.NewWeighted(int64(workers)),
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Encode encodes texts and returns one vector per text in order.
func (p *Pool) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += p.batchSize {
		start := start
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := p.encodeBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type encodeResult struct {
	vecs [][]float32
	err  error
}

// encodeBatch runs one encoder call. The worker slot is held until the encoder returns, but the
// caller is released as soon as its context ends or the timeout fires.
func (p *Pool) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
	}

	defer cancel()

	done := make(chan encodeResult, 1)
	go func() {
		defer p.sem.Release(1)
		vecs, err := p.enc.Encode(callCtx, texts)
		done <- encodeResult{vecs: vecs, err: err}
	}()
	return p.await(callCtx, done, len(texts))
}

// await waits for the encoder result. A result already delivered wins over a context that ended
// at the same time.
func (p *Pool) await(ctx context.Context, done <-chan encodeResult, n int) ([][]float32, error) {
	var r encodeResult
	select {
	case r = <-done:
	case <-ctx.Done():
		select {
		case r = <-done:
		default:
			return nil, fmt.Errorf("encode: %w", ctx.Err())
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("encode: %w", r.err)
	}
	if err := checkBatch(r.vecs, n, p.enc.Dimensions()); err != nil {
		return nil, err
	}
	return r.vecs, nil
}

// Dimensions returns the wrapped encoder's dimension.
func (p *Pool) Dimensions() int {
	return p.enc.Dimensions()
}

// ModelName returns the wrapped encoder's model name.
func (p *Pool) ModelName() string {
	return p.enc.ModelName()
}

// Close closes the wrapped encoder.
func (p *Pool) Close() error {
	return p.enc.Close()
}
